// Package style contains decorators for console output. They return colorstring markup which is
// rendered by console.ConsoleWriter.
package style

// Project highlights a project name
func Project(name string) string {
	return "[bold][cyan]" + name + "[reset]"
}

// Path highlights a file system path or URL
func Path(path string) string {
	return "[underline]" + path + "[reset]"
}

// Label highlights the kind of an operation ("Task", "Command", ...)
func Label(label string) string {
	return "[bold][magenta]" + label + "[reset]"
}

// Dim de-emphasizes secondary information like platform names and arrows
func Dim(text string) string {
	return "[dim]" + text + "[reset]"
}
