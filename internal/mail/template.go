package mail

import (
	"bytes"
	"fmt"
	"html/template"
	"time"
)

// OTPSubject はOTP通知メールの件名。
const OTPSubject = "Your OTP Code"

var otpTemplate = template.Must(template.New("otp").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: sans-serif;">
  <p>Your one-time login code is:</p>
  <p style="font-size: 24px; font-weight: bold; letter-spacing: 4px;">{{.Code}}</p>
  <p>This code will expire in {{.Minutes}} minutes. If you did not try to log in, you can ignore this email.</p>
</body>
</html>
`))

// OTPMessage はOTP通知メールを組み立てる。
func OTPMessage(to, code string, validFor time.Duration) (Message, error) {
	var buf bytes.Buffer
	err := otpTemplate.Execute(&buf, struct {
		Code    string
		Minutes int
	}{
		Code:    code,
		Minutes: Minutes(validFor),
	})
	if err != nil {
		return Message{}, fmt.Errorf("failed to render otp mail: %w", err)
	}

	return Message{To: to, Subject: OTPSubject, HTML: buf.String()}, nil
}

// Minutes は有効期間を分単位に切り上げて返す。最小は1分。
func Minutes(d time.Duration) int {
	m := int((d + time.Minute - 1) / time.Minute)
	if m < 1 {
		m = 1
	}
	return m
}
