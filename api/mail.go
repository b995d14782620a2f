package main

import (
	"bytes"
	"context"
	"embed"
	"html/template"

	"github.com/go-mail/mail/v2"

	"github.com/harlequingg/task-tracker-api/internal/models"
)

//go:embed templates
var templateFS embed.FS

type mailer struct {
	dailer *mail.Dialer
	sender string
}

func newMailer(host string, port int, username string, password string, sender string) *mailer {
	dailer := mail.NewDialer(host, port, username, password)
	return &mailer{
		dailer: dailer,
		sender: sender,
	}
}

// TaskAssigned tells assignee about t.
func (m *mailer) TaskAssigned(ctx context.Context, assignee *models.User, t *models.Task) error {
	tmpl, err := template.ParseFS(templateFS, "templates/task_assigned.tmpl")
	if err != nil {
		return err
	}
	data := struct {
		Name string
		Task *models.Task
	}{
		Name: assignee.Name,
		Task: t,
	}
	return m.send(ctx, assignee.Email, tmpl, data)
}

func (m *mailer) send(ctx context.Context, to string, tmpl *template.Template, data any) error {
	var subject bytes.Buffer
	err := tmpl.ExecuteTemplate(&subject, "subject", data)
	if err != nil {
		return err
	}
	var plainBody bytes.Buffer
	err = tmpl.ExecuteTemplate(&plainBody, "plainBody", data)
	if err != nil {
		return err
	}
	var htmlBody bytes.Buffer
	err = tmpl.ExecuteTemplate(&htmlBody, "htmlBody", data)
	if err != nil {
		return err
	}

	msg := mail.NewMessage()
	msg.SetHeader("To", to)
	msg.SetHeader("From", m.sender)
	msg.SetHeader("Subject", subject.String())
	msg.SetBody("text/plain", plainBody.String())
	msg.AddAlternative("text/html", htmlBody.String())

	for i := 0; i < 3; i++ {
		if err = ctx.Err(); err != nil {
			return err
		}
		err = m.dailer.DialAndSend(msg)
		if err == nil {
			break
		}
	}
	return err
}
