package sdk

import "net/http"

// Endpoints holds the upstream URLs the handshake and the operations talk to.
// DefaultEndpoints points at the production portal; tests point it at an httptest server.
type Endpoints struct {
	// PortalEntry is the SSO entry point requested first in the handshake.
	PortalEntry string
	// PortalReferer is sent with the PortalEntry request and the space index request.
	PortalReferer string
	// OAuthLogin is the credential form page; a redirect here means credentials are required.
	OAuthLogin string
	// LandingPrefix prefixes every URL the server redirects to once the OAuth step is done.
	LandingPrefix string
	// PortalHome is where the continuation form must land.
	PortalHome string
	// SetCookie finalizes the session cookie; it receives the fid captured from the form.
	SetCookie string
	// Probe is the lightweight liveness endpoint.
	Probe string
	// SpaceIndex is the personal space page that embeds the course list URL.
	SpaceIndex string
	// CourseListPrefix prefixes the course list URL embedded in SpaceIndex.
	CourseListPrefix string
	// WorkHost is prepended to the relative work list path found on a course page.
	WorkHost string
	// WorkListPath prefixes the relative work list path embedded in a course page.
	WorkListPath string
}

// DefaultEndpoints returns the production endpoints.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		PortalEntry:      "http://shu.fysso.chaoxing.com/sso/shu",
		PortalReferer:    "http://www.elearning.shu.edu.cn/portal",
		OAuthLogin:       "https://oauth.shu.edu.cn/login",
		LandingPrefix:    "http://www.elearning.shu.edu.cn/sso/logind",
		PortalHome:       "http://www.elearning.shu.edu.cn/portal",
		SetCookie:        "http://www.elearning.shu.edu.cn/setcookie.jsp",
		Probe:            "http://www.elearning.shu.edu.cn/topjs?index=1",
		SpaceIndex:       "http://i.mooc.elearning.shu.edu.cn/space/index.shtml",
		CourseListPrefix: "http://www.elearning.shu.edu.cn/courselist/study?s=",
		WorkHost:         "http://mooc1.elearning.shu.edu.cn",
		WorkListPath:     "/work/getAllWork?",
	}
}

// submitMarker is the value of the submit button on the OAuth login form.
const submitMarker = "登录/Login"

// browserHeaders is the identity presented on every request. The portal rejects unknown clients.
func browserHeaders() http.Header {
	h := make(http.Header)
	h.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_13) AppleWebKit/603.1.13 (KHTML, like Gecko) Version/10.1 Safari/603.1.13")
	h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,image/apng,*/*;q=0.8,application/signed-exchange;v=b3;q=0.9")
	h.Set("Accept-Language", "zh-CN,zh;q=0.9,en;q=0.8,zh-TW;q=0.7")
	return h
}
