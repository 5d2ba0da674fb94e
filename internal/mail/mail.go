package mail

import (
	"bytes"
	"fmt"
	"log"
	"net/smtp"
	"strings"
	"text/template"
)

// Mailer delivers the two notification kinds the service sends. Delivery is
// best effort; callers never let a send failure fail the triggering
// operation.
type Mailer interface {
	SendInvitation(email, link string) error
	SendCompletion(email, accessCode string) error
}

type invitationParams struct {
	Email string
	URL   string
}

type completionParams struct {
	Email      string
	AccessCode string
}

var invitationTemplate = template.Must(template.New("invitation").Parse(`Hi {{.Email}},

You have been invited to take the safety quiz. Open the link below to start:

{{.URL}}

The link stays valid for 7 days and works until the quiz is passed.
`))

var completionTemplate = template.Must(template.New("completion").Parse(`Hi {{.Email}},

You passed the safety quiz. Your access code:

{{.AccessCode}}

Show it at the reception to be let in.
`))

// SMTP sends through a plain-auth SMTP relay.
type SMTP struct {
	addr           string
	from           string
	password       string
	frontendOrigin string
}

func NewSMTP(addr, from, password, frontendOrigin string) *SMTP {
	return &SMTP{addr: addr, from: from, password: password, frontendOrigin: frontendOrigin}
}

func (s *SMTP) SendInvitation(email, link string) error {
	var body bytes.Buffer
	if err := invitationTemplate.Execute(&body, invitationParams{
		Email: email,
		URL:   s.frontendOrigin + "/test/" + link,
	}); err != nil {
		return err
	}
	return s.send(email, "Safety quiz invitation", body.String())
}

func (s *SMTP) SendCompletion(email, accessCode string) error {
	var body bytes.Buffer
	if err := completionTemplate.Execute(&body, completionParams{Email: email, AccessCode: accessCode}); err != nil {
		return err
	}
	return s.send(email, "Your access code", body.String())
}

func (s *SMTP) send(to, subject, body string) error {
	host := s.addr
	if i := strings.LastIndex(host, ":"); i >= 0 {
		host = host[:i]
	}
	message := []byte(fmt.Sprintf("To: %s\r\nFrom: %s\r\nSubject: %s\r\n\r\n%s\r\n", to, s.from, subject, body))
	auth := smtp.PlainAuth("", s.from, s.password, host)
	return smtp.SendMail(s.addr, auth, s.from, []string{to}, message)
}

// Log is the no-SMTP fallback used in development: payloads go to the log
// instead of the wire.
type Log struct {
	frontendOrigin string
}

func NewLog(frontendOrigin string) *Log {
	return &Log{frontendOrigin: frontendOrigin}
}

func (l *Log) SendInvitation(email, link string) error {
	log.Printf("mail (dev): invitation to %s: %s/test/%s", email, l.frontendOrigin, link)
	return nil
}

func (l *Log) SendCompletion(email, accessCode string) error {
	log.Printf("mail (dev): access code for %s: %s", email, accessCode)
	return nil
}
