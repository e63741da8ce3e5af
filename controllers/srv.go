// controllers/srv.go
package controllers

import (
	"net/http"
	"strings"
	"time"

	"device_loan_tool/app"
	"device_loan_tool/db"
	"device_loan_tool/scanner"
	"device_loan_tool/session"
)

type Srv struct {
	Repo      *db.Repo
	AdminSess *session.AdminSessionStore
	Scanner   *scanner.Scanner
	Cfg       app.Config
}

func GetSrv(a *app.App, sc *scanner.Scanner) *Srv {
	return &Srv{
		Repo:      db.NewRepo(a.DB),
		AdminSess: a.AdminSessions(),
		Scanner:   sc,
		Cfg:       a.Config,
	}
}

// --- helpers ---

// 统一设置管理会话 Cookie
func (s *Srv) setAdminCookie(w http.ResponseWriter, sessionID string, maxAge time.Duration) {
	secure := strings.HasPrefix(s.Cfg.WebOrigin, "https://")
	http.SetCookie(w, &http.Cookie{
		Name:     app.AdminSessionCookie,
		Value:    sessionID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   secure,
		MaxAge:   int(maxAge / time.Second),
	})
}
