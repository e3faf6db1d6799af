package service

import (
	"regexp"
	"strings"
)

// GeneralCourse is the label used when a window names no course.
const GeneralCourse = "GENERAL"

var courseCodePattern = regexp.MustCompile(`(?i)\b([a-z]{3,4})[ -]?(\d{4})\b`)

// ExtractCourse finds a course code such as ISIS3710 or "mate 1203" in a
// free-text title and returns it upper-cased without separator.
func ExtractCourse(title string) string {
	m := courseCodePattern.FindStringSubmatch(title)
	if m == nil {
		return ""
	}
	return strings.ToUpper(m[1] + m[2])
}

// ResolveCourse prefers the explicit course, then the code found in title.
func ResolveCourse(explicit, title string) string {
	if c := strings.TrimSpace(explicit); c != "" {
		return c
	}
	if c := ExtractCourse(title); c != "" {
		return c
	}
	return GeneralCourse
}
