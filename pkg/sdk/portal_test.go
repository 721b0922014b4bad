package sdk

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

const (
	testAccount = "12345678"
	testSecret  = "secret"
	testFID     = "4242"
)

// fakePortal is an httptest server that plays the SSO portal and the course site.
type fakePortal struct {
	srv *httptest.Server

	mu           sync.Mutex
	hits         map[string]int
	posts        int
	requests     int
	termHits     int
	courseHits   int
	courseQuery  map[string]string
	oauthSession bool

	// knobs
	entryRedirect  string
	credentialBody string
	landingBody    string
	portalRedirect string
	probeBody      string
	termsBody      string
	worksBody      string
}

func newFakePortal(t *testing.T) *fakePortal {
	t.Helper()
	p := &fakePortal{
		hits:           make(map[string]int),
		entryRedirect:  "/oauth/login",
		portalRedirect: "/portal",
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/sso/shu", p.handleEntry)
	mux.HandleFunc("/oauth/login", p.handleOAuth)
	mux.HandleFunc("/sso/logind", p.handleLanding)
	mux.HandleFunc("/sso/continue", p.handleContinue)
	mux.HandleFunc("/portal", func(w http.ResponseWriter, r *http.Request) { io.WriteString(w, "portal") })
	mux.HandleFunc("/elsewhere", func(w http.ResponseWriter, r *http.Request) { io.WriteString(w, "maintenance") })
	mux.HandleFunc("/setcookie.jsp", p.handleSetCookie)
	mux.HandleFunc("/topjs", p.handleProbe)
	mux.HandleFunc("/space/index.shtml", p.handleSpace)
	mux.HandleFunc("/courselist/study", p.handleCourseList)
	mux.HandleFunc("/course/", p.handleCoursePage)
	mux.HandleFunc("/work/getAllWork", p.handleWorks)

	p.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		p.requests++
		p.hits[r.URL.Path]++
		if r.Method == http.MethodPost {
			p.posts++
		}
		p.mu.Unlock()
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(p.srv.Close)
	return p
}

func (p *fakePortal) endpoints() Endpoints {
	base := p.srv.URL
	return Endpoints{
		PortalEntry:      base + "/sso/shu",
		PortalReferer:    base + "/portal",
		OAuthLogin:       base + "/oauth/login",
		LandingPrefix:    base + "/sso/logind",
		PortalHome:       base + "/portal",
		SetCookie:        base + "/setcookie.jsp",
		Probe:            base + "/topjs",
		SpaceIndex:       base + "/space/index.shtml",
		CourseListPrefix: base + "/courselist/study?s=",
		WorkHost:         base,
		WorkListPath:     "/work/getAllWork?",
	}
}

func (p *fakePortal) snapshot() (requests, posts int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.requests, p.posts
}

func (p *fakePortal) hitCount(path string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hits[path]
}

func (p *fakePortal) counter(c *int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return *c
}

func (p *fakePortal) handleEntry(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	reuse := p.oauthSession
	target := p.entryRedirect
	p.mu.Unlock()
	if reuse {
		target = "/sso/logind?ticket=reused"
	}
	http.Redirect(w, r, target, http.StatusFound)
}

func (p *fakePortal) handleOAuth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		io.WriteString(w, "<html>login form</html>")
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	p.mu.Lock()
	body := p.credentialBody
	p.mu.Unlock()
	if body != "" {
		io.WriteString(w, body)
		return
	}
	if r.PostForm.Get("username") != testAccount || r.PostForm.Get("password") != testSecret ||
		r.PostForm.Get("login_submit") != submitMarker {
		io.WriteString(w, "<html>认证失败</html>")
		return
	}
	http.Redirect(w, r, "/sso/logind?ticket=abc", http.StatusFound)
}

func (p *fakePortal) handleLanding(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	body := p.landingBody
	p.mu.Unlock()
	if body == "" {
		body = `<html><body>
<form id="userLogin" action="/sso/continue" method="post">
<input type="hidden" name="fid" value="` + testFID + `"/>
<input type="hidden" name="uid" value="77"/>
<input type="text" name="ignored" value="x"/>
</form></body></html>`
	}
	io.WriteString(w, body)
}

func (p *fakePortal) handleContinue(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil || r.Method != http.MethodPost {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if r.PostForm.Get("fid") != testFID || r.PostForm.Get("uid") != "77" || r.PostForm.Has("ignored") {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	p.mu.Lock()
	target := p.portalRedirect
	p.mu.Unlock()
	http.Redirect(w, r, target, http.StatusFound)
}

func (p *fakePortal) handleSetCookie(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("fid") == testFID {
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "ok", Path: "/"})
	}
	io.WriteString(w, "ok")
}

func (p *fakePortal) handleProbe(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	body := p.probeBody
	p.mu.Unlock()
	if body != "" {
		io.WriteString(w, body)
		return
	}
	if c, err := r.Cookie("session"); err == nil && c.Value == "ok" {
		io.WriteString(w, `document.write("afterLogin")`)
		return
	}
	io.WriteString(w, `document.write("beforeLogin")`)
}

func (p *fakePortal) handleSpace(w http.ResponseWriter, r *http.Request) {
	fmt.Fprintf(w, `<script>var courseUrl = "%s/courselist/study?s=abc&amp;v=1";</script>`, p.srv.URL)
}

func (p *fakePortal) handleCourseList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	p.mu.Lock()
	defer p.mu.Unlock()
	if !q.Has("year") {
		p.termHits++
		body := p.termsBody
		if body == "" {
			body = termsPage
		}
		io.WriteString(w, body)
		return
	}
	p.courseHits++
	p.courseQuery = map[string]string{"year": q.Get("year"), "term": q.Get("term"), "showContent": q.Get("showContent")}
	fmt.Fprintf(w, coursesPage, p.srv.URL, p.srv.URL)
}

func (p *fakePortal) handleCoursePage(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Path[len("/course/"):]
	fmt.Fprintf(w, `<script>var workUrl = '/work/getAllWork?courseId=%s&classId=9';</script>`, id)
}

func (p *fakePortal) handleWorks(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	body := p.worksBody
	p.mu.Unlock()
	if body != "" {
		io.WriteString(w, body)
		return
	}
	if r.URL.Query().Get("courseId") == "2" {
		io.WriteString(w, finishedWorksPage)
		return
	}
	io.WriteString(w, worksPage)
}

const termsPage = `<html><body><ul class="zse_ul">
<li class="zse_li"><a data_year="2019" data_term="2">2019-2020学年秋季学期</a></li>
<li class="zse_li"><a data_year="2019" data_term="3"> 2019-2020学年冬季学期 </a></li>
<li class="zse_li"><a data_year="2018" data_term="3">2018-2019学年冬季学期</a></li>
<li class="zse_li"><a data_year="" data_term="">全部</a></li>
</ul></body></html>`

const coursesPage = `<html><body><ul>
<li class="zmy_item clearfix"><a href="%s/course/1">cover</a>
<dl><dt name="courseNameHtml"> 高等数学 </dt><dt><span>(01)</span></dt><dd name="userNameHtml"> 张老师 </dd></dl></li>
<li class="zmy_item"><a href="%s/course/2">cover</a>
<dl><dt name="courseNameHtml">大学英语</dt><dt><span>(03)</span></dt><dd name="userNameHtml">李老师</dd></dl></li>
</ul></body></html>`

const worksPage = `<html><body><div class="ulDiv"><ul>
<li><div class="titTxt"><p><a title="作业一" href="#">作业一</a></p>
<span class="pt5">2020-03-01 08:00</span><span class="pt5">2020-03-08 23:59</span>
<span><strong> 待做 </strong></span></div></li>
<li><div class="titTxt"><p><a title="作业二" href="#">作业二</a></p>
<span class="pt5"> </span><span class="pt5"> </span>
<span><strong>待做</strong></span></div></li>
<li><div class="titTxt"><p><a title="作业零" href="#">作业零</a></p>
<span class="pt5">2020-02-01 08:00</span><span class="pt5">2020-02-08 23:59</span>
<span><strong>已完成</strong></span></div></li>
</ul></div></body></html>`

const finishedWorksPage = `<html><body><div class="ulDiv"><ul>
<li><div class="titTxt"><p><a title="Unit 1" href="#">Unit 1</a></p>
<span class="pt5">2020-02-01 08:00</span><span class="pt5">2020-02-08 23:59</span>
<span><strong>已完成</strong></span></div></li>
</ul></div></body></html>`

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestSession(p *fakePortal, opts ...Option) *Session {
	base := []Option{
		WithEndpoints(p.endpoints()),
		WithTransportConfig(TransportConfig{Timeout: 5 * time.Second, MaxRetries: -1}),
		WithLogger(discardLogger()),
	}
	return NewSession(Credential{AccountID: testAccount, Secret: testSecret}, append(base, opts...)...)
}

// fakeClock is a settable clock for TTL tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2020, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
