// Package pathguard decides whether a caller-supplied path stays inside a
// declared root directory. Classification works on generic path components so
// that a path rooted on any supported platform is rejected on every platform.
package pathguard

import "strings"

// Kind classifies a single path component.
type Kind int

const (
	KindNormal Kind = iota
	KindCurrent
	KindParent
	KindRoot
	KindPrefix
)

func (k Kind) String() string {
	switch k {
	case KindCurrent:
		return "current"
	case KindParent:
		return "parent"
	case KindRoot:
		return "root"
	case KindPrefix:
		return "prefix"
	default:
		return "normal"
	}
}

// Component is one element of a split path.
type Component struct {
	Kind Kind
	Text string
}

func isSeparator(c byte) bool {
	return c == '/' || c == '\\'
}

func isDriveLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// Components splits p on both '/' and '\' and classifies each element. A
// leading Windows prefix (drive letter, UNC share, verbatim or device path)
// yields a KindPrefix component and a separator directly after it, or at the
// very start, yields KindRoot.
func Components(p string) []Component {
	var out []Component
	rest := p

	if prefix, remainder, ok := splitPrefix(rest); ok {
		out = append(out, Component{Kind: KindPrefix, Text: prefix})
		rest = remainder
	}
	if rest != "" && isSeparator(rest[0]) {
		out = append(out, Component{Kind: KindRoot, Text: rest[:1]})
		rest = strings.TrimLeft(rest, `/\`)
	}

	for _, part := range strings.FieldsFunc(rest, func(r rune) bool { return r == '/' || r == '\\' }) {
		switch part {
		case ".":
			out = append(out, Component{Kind: KindCurrent, Text: part})
		case "..":
			out = append(out, Component{Kind: KindParent, Text: part})
		default:
			out = append(out, Component{Kind: KindNormal, Text: part})
		}
	}
	return out
}

// splitPrefix recognizes Windows path prefixes regardless of host OS.
func splitPrefix(p string) (prefix, rest string, ok bool) {
	if len(p) >= 2 && isDriveLetter(p[0]) && p[1] == ':' {
		return p[:2], p[2:], true
	}
	if len(p) < 3 || !isSeparator(p[0]) || !isSeparator(p[1]) {
		return "", p, false
	}
	// \\?\C:\..., \\.\pipe\..., \\?\UNC\server\share
	if (p[2] == '?' || p[2] == '.') && len(p) >= 4 && isSeparator(p[3]) {
		end := nextSeparator(p, 4)
		return p[:end], p[end:], true
	}
	if isSeparator(p[2]) {
		return "", p, false
	}
	// \\server\share
	serverEnd := nextSeparator(p, 2)
	if serverEnd == len(p) {
		return p, "", true
	}
	shareEnd := nextSeparator(p, serverEnd+1)
	return p[:shareEnd], p[shareEnd:], true
}

func nextSeparator(p string, from int) int {
	for i := from; i < len(p); i++ {
		if isSeparator(p[i]) {
			return i
		}
	}
	return len(p)
}

// HasRootedComponent reports whether p carries a root or prefix component
// valid on any supported platform. It is the single "is absolute" predicate
// used across the module.
func HasRootedComponent(p string) bool {
	for _, c := range Components(p) {
		if c.Kind == KindRoot || c.Kind == KindPrefix {
			return true
		}
	}
	return false
}

// HasParentComponent reports whether p contains a ".." element.
func HasParentComponent(p string) bool {
	for _, c := range Components(p) {
		if c.Kind == KindParent {
			return true
		}
	}
	return false
}

// SafeSingleComponent reports whether name is exactly one normal path element,
// suitable as a directory or file name created under a trusted parent.
func SafeSingleComponent(name string) bool {
	if name == "" || strings.ContainsRune(name, 0) {
		return false
	}
	comps := Components(name)
	return len(comps) == 1 && comps[0].Kind == KindNormal && comps[0].Text == name
}
