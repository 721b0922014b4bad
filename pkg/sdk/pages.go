package sdk

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// PageParser turns list pages into typed records. HTMLPageParser is the default.
type PageParser interface {
	Terms(body string) ([]Term, error)
	Courses(body string) ([]CourseInfo, error)
	Works(body string) ([]WorkInfo, error)
}

// workTimeLayout is the format of assignment start and end times.
const workTimeLayout = "2006-01-02 15:04"

// chinaTime is the portal's time zone. WorkInfo.UnmarshalJSON converts decoded times back to it.
var chinaTime = time.FixedZone("CST", 8*60*60)

// HTMLPageParser parses the portal's list pages.
type HTMLPageParser struct{}

var _ PageParser = HTMLPageParser{}

// Terms parses the term selector of the course list page. Entries whose year or term attribute is
// not numeric get UnknownTerm as id.
func (HTMLPageParser) Terms(body string) ([]Term, error) {
	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse term page: %w", err)
	}
	var terms []Term
	for _, ul := range findAll(doc, elementWithClass("ul", "zse_ul")) {
		for _, li := range children(ul, elementWithClass("li", "zse_li")) {
			for _, a := range children(li, element("a")) {
				year, _ := attr(a, "data_year")
				term, _ := attr(a, "data_term")
				id, err := strconv.Atoi(strings.TrimSpace(year) + strings.TrimSpace(term))
				if err != nil {
					id = UnknownTerm
				}
				terms = append(terms, Term{ID: id, Label: strings.TrimSpace(textContent(a))})
			}
		}
	}
	return terms, nil
}

// Courses parses the course list page.
func (HTMLPageParser) Courses(body string) ([]CourseInfo, error) {
	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse course page: %w", err)
	}
	var courses []CourseInfo
	for i, li := range findAll(doc, elementWithClass("li", "zmy_item")) {
		link := first(children(li, element("a")))
		if link == nil {
			return nil, fmt.Errorf("course %d: missing link", i)
		}
		href, _ := attr(link, "href")

		var name, teacher, seq string
		for _, dl := range children(li, element("dl")) {
			for _, dt := range children(dl, element("dt")) {
				if v, _ := attr(dt, "name"); v == "courseNameHtml" && name == "" {
					name = strings.TrimSpace(ownText(dt))
				}
				if span := first(children(dt, element("span"))); span != nil && seq == "" {
					seq = strings.TrimSpace(ownText(span))
				}
			}
			for _, dd := range children(dl, element("dd")) {
				if v, _ := attr(dd, "name"); v == "userNameHtml" && teacher == "" {
					teacher = strings.TrimSpace(ownText(dd))
				}
			}
		}
		if name == "" {
			return nil, fmt.Errorf("course %d: missing name", i)
		}
		// The sequence is rendered in brackets, e.g. "(01)".
		if len([]rune(seq)) >= 2 {
			r := []rune(seq)
			seq = string(r[1 : len(r)-1])
		}
		courses = append(courses, CourseInfo{PageURL: href, Name: name, Teacher: teacher, Seq: seq})
	}
	return courses, nil
}

// Works parses the assignment list of a course.
func (HTMLPageParser) Works(body string) ([]WorkInfo, error) {
	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse work page: %w", err)
	}
	var works []WorkInfo
	for _, div := range findAll(doc, elementWithClass("div", "ulDiv")) {
		for _, ul := range children(div, element("ul")) {
			for i, li := range children(ul, element("li")) {
				work, err := parseWork(li)
				if err != nil {
					return nil, fmt.Errorf("work %d: %w", i, err)
				}
				works = append(works, work)
			}
		}
	}
	return works, nil
}

func parseWork(li *html.Node) (WorkInfo, error) {
	title := first(children(li, elementWithClass("div", "titTxt")))
	if title == nil {
		return WorkInfo{}, fmt.Errorf("missing title block")
	}

	var work WorkInfo
	for _, p := range children(title, element("p")) {
		if a := first(children(p, element("a"))); a != nil {
			work.Name, _ = attr(a, "title")
			break
		}
	}

	var times []string
	for _, span := range children(title, element("span")) {
		if hasClass(span, "pt5") {
			for c := span.FirstChild; c != nil; c = c.NextSibling {
				if c.Type == html.TextNode {
					times = append(times, strings.TrimSpace(c.Data))
				}
			}
		}
		if work.Status == "" {
			if strong := first(children(span, element("strong"))); strong != nil {
				work.Status = strings.TrimSpace(ownText(strong))
			}
		}
	}
	if len(times) < 2 {
		return WorkInfo{}, fmt.Errorf("expected start and end time, found %d value(s)", len(times))
	}
	var err error
	if work.Start, err = parseWorkTime(times[0]); err != nil {
		return WorkInfo{}, err
	}
	if work.End, err = parseWorkTime(times[1]); err != nil {
		return WorkInfo{}, err
	}
	return work, nil
}

func parseWorkTime(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation(workTimeLayout, value, chinaTime)
	if err != nil {
		return nil, fmt.Errorf("parse time %q: %w", value, err)
	}
	return &t, nil
}

// loginForm is the hidden continuation form served after the OAuth step.
type loginForm struct {
	Action string
	Fields url.Values
	FID    string
}

// parseLoginForm extracts form#userLogin and its hidden inputs. The action is resolved against base.
func parseLoginForm(body, base string) (*loginForm, error) {
	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse login page: %w", err)
	}
	form := first(findAll(doc, func(n *html.Node) bool {
		id, _ := attr(n, "id")
		return n.Type == html.ElementNode && n.Data == "form" && id == "userLogin"
	}))
	if form == nil {
		return nil, fmt.Errorf("form userLogin not found")
	}
	action, ok := attr(form, "action")
	if !ok || action == "" {
		return nil, fmt.Errorf("form userLogin has no action")
	}
	if baseURL, err := url.Parse(base); err == nil {
		if ref, err := url.Parse(action); err == nil {
			action = baseURL.ResolveReference(ref).String()
		}
	}

	result := &loginForm{Action: action, Fields: make(url.Values)}
	for _, input := range children(form, element("input")) {
		if typ, _ := attr(input, "type"); !strings.EqualFold(typ, "hidden") {
			continue
		}
		name, _ := attr(input, "name")
		value, _ := attr(input, "value")
		result.Fields.Set(name, value)
		if name == "fid" {
			result.FID = value
		}
	}
	if result.FID == "" {
		return nil, fmt.Errorf("form userLogin has no fid")
	}
	return result, nil
}

// extractQuoted returns the first quoted string in source that starts with prefix.
func extractQuoted(source, prefix string) (string, error) {
	start := strings.Index(source, prefix)
	if start <= 0 {
		return "", fmt.Errorf("%q not found", prefix)
	}
	quote := source[start-1]
	if quote != '\'' && quote != '"' {
		return "", fmt.Errorf("%q is not quoted", prefix)
	}
	end := strings.IndexByte(source[start:], quote)
	if end < 0 {
		return "", fmt.Errorf("%q is not terminated", prefix)
	}
	return html.UnescapeString(source[start : start+end]), nil
}

// --- node helpers ---

func element(tag string) func(*html.Node) bool {
	return func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.Data == tag
	}
}

func elementWithClass(tag, class string) func(*html.Node) bool {
	return func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.Data == tag && hasClass(n, class)
	}
}

func hasClass(n *html.Node, class string) bool {
	value, _ := attr(n, "class")
	for _, c := range strings.Fields(value) {
		if c == class {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func findAll(n *html.Node, match func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if match(n) {
			out = append(out, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

func children(n *html.Node, match func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if match(c) {
			out = append(out, c)
		}
	}
	return out
}

func first(nodes []*html.Node) *html.Node {
	if len(nodes) == 0 {
		return nil
	}
	return nodes[0]
}

func ownText(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	}
	return b.String()
}

func textContent(n *html.Node) string {
	var b strings.Builder
	for _, t := range findAll(n, func(n *html.Node) bool { return n.Type == html.TextNode }) {
		b.WriteString(t.Data)
	}
	return b.String()
}
