package frontend

//go:generate go run github.com/a-h/templ/cmd/templ@v0.3.977 generate

// Chrome is the shared page frame: title, signed-in user, header search and
// an optional notice banner.
type Chrome struct {
	Title  string
	Email  string
	Query  string
	Notice string
	// Live subscribes the page to the change feed so edits made elsewhere
	// trigger a refresh.
	Live bool
}

// AuthForm carries what the login and sign-up forms echo back.
type AuthForm struct {
	Email string
}

var weekdayNames = []string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}

func pageTitle(title string) string {
	if title == "" {
		return "Daily Planner"
	}
	return title + " · Daily Planner"
}

func dayPath(date string) string {
	return "/day/" + date
}

func todoPath(date, id, action string) string {
	return dayPath(date) + "/todos/" + id + "/" + action
}
