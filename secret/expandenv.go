package secret

import (
	"fmt"
	"os"
	"regexp"
	"slices"
	"strings"
)

var bracedVar = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// ExpandEnvStrict expands environment variables in s.
//
// `$VAR` and `${VAR}` are expanded; a missing `$VAR` becomes empty, but any
// missing `${VAR}` fails with ErrMissingEnv naming every such variable.
// `$$` emits a literal `$`.
func ExpandEnvStrict(s string) (string, error) {
	return expandStrict(s, os.LookupEnv)
}

func expandStrict(s string, lookup func(string) (string, bool)) (string, error) {
	const dollar = "\x00dollar\x00"
	s = strings.ReplaceAll(s, "$$", dollar)

	var missing []string
	for _, m := range bracedVar.FindAllStringSubmatch(s, -1) {
		if _, ok := lookup(m[1]); !ok && !slices.Contains(missing, m[1]) {
			missing = append(missing, m[1])
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return "", fmt.Errorf("%w: %s", ErrMissingEnv, strings.Join(missing, ", "))
	}

	s = os.Expand(s, func(name string) string {
		v, _ := lookup(name)
		return v
	})
	return strings.ReplaceAll(s, dollar, "$"), nil
}
