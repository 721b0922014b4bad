// Package sdktest provides an in-process stand-in for the SSO portal and the course site, for
// tests of code built on the sdk package.
package sdktest

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/hwenwur/oh-my-ddl/pkg/sdk"
)

// Account and Secret are the only credentials the portal accepts unless changed with SetSecret.
const (
	Account = "12345678"
	Secret  = "secret"
)

const fid = "4242"

// Portal serves the login handshake, the liveness probe and two courses. Course 1 has two
// pending assignments, one of them without a deadline; course 2 has none.
type Portal struct {
	srv *httptest.Server

	mu          sync.Mutex
	secret      string
	rateLimited bool
	logins      int
	listings    map[string]int
	sessionGen  int
}

// NewPortal starts a portal that is shut down when the test ends.
func NewPortal(t testing.TB) *Portal {
	t.Helper()
	p := &Portal{secret: Secret, listings: make(map[string]int)}

	mux := http.NewServeMux()
	mux.HandleFunc("/sso/shu", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/oauth/login", http.StatusFound)
	})
	mux.HandleFunc("/oauth/login", p.handleOAuth)
	mux.HandleFunc("/sso/logind", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `<form id="userLogin" action="/sso/continue" method="post">
<input type="hidden" name="fid" value="`+fid+`"/></form>`)
	})
	mux.HandleFunc("/sso/continue", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/portal", http.StatusFound)
	})
	mux.HandleFunc("/portal", func(w http.ResponseWriter, r *http.Request) { io.WriteString(w, "portal") })
	mux.HandleFunc("/setcookie.jsp", p.handleSetCookie)
	mux.HandleFunc("/topjs", p.handleProbe)
	mux.HandleFunc("/space/index.shtml", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<script>var courseUrl = "%s/courselist/study?s=abc";</script>`, p.srv.URL)
	})
	mux.HandleFunc("/courselist/study", p.handleCourseList)
	mux.HandleFunc("/course/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<script>var u = '/work/getAllWork?courseId=%s';</script>`, r.URL.Path[len("/course/"):])
	})
	mux.HandleFunc("/work/getAllWork", p.handleWorks)

	p.srv = httptest.NewServer(mux)
	t.Cleanup(p.srv.Close)
	return p
}

// URL is the portal's base URL.
func (p *Portal) URL() string { return p.srv.URL }

// Endpoints points a session at the portal.
func (p *Portal) Endpoints() sdk.Endpoints {
	base := p.srv.URL
	return sdk.Endpoints{
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

// SetSecret changes the accepted secret.
func (p *Portal) SetSecret(secret string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.secret = secret
}

// SetRateLimited makes every credential submission answer with the lockout page.
func (p *Portal) SetRateLimited(v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rateLimited = v
}

// ExpireSessions invalidates every session cookie issued so far.
func (p *Portal) ExpireSessions() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessionGen++
}

// Logins counts accepted credential submissions.
func (p *Portal) Logins() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.logins
}

// Listings counts course list requests, which every uncached listing makes.
func (p *Portal) Listings() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.listings["courses"]
}

func (p *Portal) handleOAuth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		io.WriteString(w, "<html>login form</html>")
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case p.rateLimited:
		io.WriteString(w, "<html>连续出错次数太多</html>")
	case r.PostForm.Get("username") != Account || r.PostForm.Get("password") != p.secret:
		io.WriteString(w, "<html>认证失败</html>")
	default:
		p.logins++
		http.Redirect(w, r, "/sso/logind?ticket=abc", http.StatusFound)
	}
}

func (p *Portal) sessionValue() string {
	return fmt.Sprintf("ok-%d", p.sessionGen)
}

func (p *Portal) handleSetCookie(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	value := p.sessionValue()
	p.mu.Unlock()
	if r.URL.Query().Get("fid") == fid {
		http.SetCookie(w, &http.Cookie{Name: "session", Value: value, Path: "/"})
	}
	io.WriteString(w, "ok")
}

func (p *Portal) handleProbe(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	value := p.sessionValue()
	p.mu.Unlock()
	if c, err := r.Cookie("session"); err == nil && c.Value == value {
		io.WriteString(w, `document.write("afterLogin")`)
		return
	}
	io.WriteString(w, `document.write("beforeLogin")`)
}

func (p *Portal) handleCourseList(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	if r.URL.Query().Has("year") {
		p.listings["courses"]++
	} else {
		p.listings["terms"]++
	}
	p.mu.Unlock()

	if !r.URL.Query().Has("year") {
		io.WriteString(w, `<ul class="zse_ul"><li class="zse_li"><a data_year="2019" data_term="3">2019-2020学年冬季学期</a></li></ul>`)
		return
	}
	fmt.Fprintf(w, `<ul>
<li class="zmy_item"><a href="%[1]s/course/1">c</a><dl><dt name="courseNameHtml">数据结构与算法</dt><dt><span>(01)</span></dt><dd name="userNameHtml">张老师</dd></dl></li>
<li class="zmy_item"><a href="%[1]s/course/2">c</a><dl><dt name="courseNameHtml">大学英语</dt><dt><span>(03)</span></dt><dd name="userNameHtml">李老师</dd></dl></li>
</ul>`, p.srv.URL)
}

func (p *Portal) handleWorks(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("courseId") != "1" {
		io.WriteString(w, `<div class="ulDiv"><ul><li><div class="titTxt"><p><a title="Unit 1">Unit 1</a></p>
<span class="pt5">2020-02-01 08:00</span><span class="pt5">2020-02-08 23:59</span><span><strong>已完成</strong></span></div></li></ul></div>`)
		return
	}
	io.WriteString(w, `<div class="ulDiv"><ul>
<li><div class="titTxt"><p><a title="实验报告">实验报告</a></p>
<span class="pt5">2020-03-01 08:00</span><span class="pt5">2020-03-08 23:59</span><span><strong>待做</strong></span></div></li>
<li><div class="titTxt"><p><a title="课堂练习">课堂练习</a></p>
<span class="pt5"> </span><span class="pt5"> </span><span><strong>待做</strong></span></div></li>
</ul></div>`)
}
