package extract

import (
	"regexp"
	"strings"

	"github.com/shelfwatch/shelfwatch/internal/parse"
)

var (
	reFrameworkMarker = regexp.MustCompile(`__NEXT_DATA__|data-reactroot|data-react-helmet|ng-app|ng-controller|x-data|v-if|v-for|data-v-`)
	reSPAName         = regexp.MustCompile(`(?i)\b(?:react|angular|vue|svelte|nuxt|ember)\b|next\.js`)
	reClientState     = regexp.MustCompile(`(?i)window\.(?:state|initialState|__state__|__initial_state__|props|__props__)\s*=`)
	reExternalScript  = regexp.MustCompile(`(?i)<script\b[^>]*\bsrc\s*=`)
	reEmptyDiv        = regexp.MustCompile(`(?i)<div\b[^>]*\bid\s*=\s*["'][^"']+["'][^>]*>\s*</div>`)
	reNoscriptBlock   = regexp.MustCompile(`(?is)<noscript\b[^>]*>(.*?)</noscript>`)
	reBodyInner       = regexp.MustCompile(`(?is)<body[^>]*>(.*?)</body>`)
	reChildScript     = regexp.MustCompile(`(?is)<script\b`)
	reChildTag        = regexp.MustCompile(`(?is)<(?:div|section|main|article|header|footer|nav|script|p|span|ul|table)\b`)
)

// detectDynamicContent flags pages that likely need a browser to render
// useful content. Two or more indicators trip the flag; nothing in the
// pipeline gates on it, it is diagnostic only.
func detectDynamicContent(c *Context) (bool, []string) {
	var indicators []string
	add := func(name string) { indicators = append(indicators, name) }

	bodyHTML := ""
	if m := reBodyInner.FindStringSubmatch(c.HTML); m != nil {
		bodyHTML = m[1]
	}

	if len(strings.TrimSpace(bodyHTML)) < 500 {
		add("tiny_body")
	}

	scriptChildren := len(reChildScript.FindAllString(bodyHTML, -1))
	allChildren := len(reChildTag.FindAllString(bodyHTML, -1))
	if allChildren > 0 && scriptChildren*2 > allChildren {
		add("script_heavy_body")
	}

	if reFrameworkMarker.MatchString(c.HTML) {
		add("framework_marker")
	}

	if len(reExternalScript.FindAllString(c.HTML, -1)) > 10 {
		add("many_external_scripts")
	}

	if len(parse.VisibleBodyText(c.Doc)) < 200 {
		add("little_visible_text")
	}

	if len(reEmptyDiv.FindAllString(c.HTML, -1)) > 5 {
		add("empty_mount_points")
	}

	noscriptLen := 0
	for _, m := range reNoscriptBlock.FindAllStringSubmatch(c.HTML, -1) {
		noscriptLen += len(strings.TrimSpace(m[1]))
	}
	if noscriptLen > 200 {
		add("substantial_noscript")
	}

	if reSPAName.MatchString(c.HTML) {
		add("spa_framework_name")
	}

	if reClientState.MatchString(c.HTML) {
		add("client_state_json")
	}

	return len(indicators) >= 2, indicators
}
