// Package toolname handles the Gateway's "<target>___<tool>" naming.
package toolname

import "strings"

// Separator joins a Gateway target name and the tool name it exposes.
const Separator = "___"

// Normalize strips the target prefix, returning everything after the
// first separator. Names without a separator are returned unchanged.
func Normalize(name string) string {
	_, tool := Split(name)
	return tool
}

// Split returns the target and logical tool name. target is empty when
// name carries no separator.
func Split(name string) (target, tool string) {
	if t, rest, ok := strings.Cut(name, Separator); ok {
		return t, rest
	}
	return "", name
}
