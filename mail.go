package accounts

import (
	"fmt"
	"html"
	"strings"
)

// VerificationEmail builds the subject and bodies for the address-ownership
// check. The raw token rides in the link and is never stored server side.
func VerificationEmail(baseURL, name, token string) (subject, htmlBody, textBody string) {
	link := joinURL(baseURL, "/verify-email?token="+token)

	subject = "Verify your email address"

	htmlBody = fmt.Sprintf(`<html><body>
		<h2>Verify your email address</h2>
		<p>Hi %s,</p>
		<p>Thanks for registering! Please verify your email address to complete your registration.</p>
		<p><a href="%s">Click here to verify your email</a></p>
		<p>Or copy this link to your browser: %s</p>
		<p>This link will expire in 24 hours.</p>
	</body></html>`, htmlName(name), link, link)

	textBody = fmt.Sprintf(
		"Hi %s,\n\nThanks for registering! Verify your email address by opening this link:\n\n%s\n\nThis link will expire in 24 hours.\n",
		textName(name), link,
	)

	return subject, htmlBody, textBody
}

// PasswordResetEmail builds the reset message with the one-hour link.
func PasswordResetEmail(baseURL, name, token string) (subject, htmlBody, textBody string) {
	link := joinURL(baseURL, "/reset-password?token="+token)

	subject = "Reset your password"

	htmlBody = fmt.Sprintf(`<html><body>
		<h2>Reset your password</h2>
		<p>Hi %s,</p>
		<p>A password reset has been requested for your account.</p>
		<p><a href="%s">Click here to reset your password</a></p>
		<p>Or copy this link to your browser: %s</p>
		<p>This link will expire in 1 hour.</p>
		<p>If you did not request this password reset, please ignore this email.</p>
	</body></html>`, htmlName(name), link, link)

	textBody = fmt.Sprintf(
		"Hi %s,\n\nA password reset has been requested for your account. Open this link to choose a new password:\n\n%s\n\nThis link will expire in 1 hour. If you did not request this reset, ignore this email.\n",
		textName(name), link,
	)

	return subject, htmlBody, textBody
}

// WelcomeEmail is sent after a successful verification.
func WelcomeEmail(baseURL, name string) (subject, htmlBody, textBody string) {
	link := joinURL(baseURL, "/login")

	subject = "Welcome aboard"

	htmlBody = fmt.Sprintf(`<html><body>
		<h2>Welcome aboard</h2>
		<p>Hi %s,</p>
		<p>Your email address is verified and your account is ready to use.</p>
		<p><a href="%s">Log in to get started</a></p>
	</body></html>`, htmlName(name), link)

	textBody = fmt.Sprintf(
		"Hi %s,\n\nYour email address is verified and your account is ready to use. Log in to get started:\n\n%s\n",
		textName(name), link,
	)

	return subject, htmlBody, textBody
}

func joinURL(base, path string) string {
	return strings.TrimRight(base, "/") + path
}

func htmlName(name string) string {
	return html.EscapeString(textName(name))
}

func textName(name string) string {
	if strings.TrimSpace(name) == "" {
		return "there"
	}
	return strings.TrimSpace(name)
}
