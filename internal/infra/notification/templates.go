package notification

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"math"
	"time"

	"github.com/novacrm/auth-service/internal/core/port"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	registrationTemplate  = "registration_otp.html"
	passwordResetTemplate = "password_reset_otp.html"
)

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

type otpView struct {
	AppName      string
	Name         string
	Code         string
	ValidMinutes int
}

func renderOTP(name, appName string, msg port.OTPMessage, now time.Time) (string, error) {
	minutes := int(math.Ceil(msg.ExpiresAt.Sub(now).Minutes()))
	if minutes < 1 {
		minutes = 1
	}

	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, otpView{
		AppName:      appName,
		Name:         msg.Name,
		Code:         msg.Code,
		ValidMinutes: minutes,
	}); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}
