package senders

import (
	"fmt"

	"github.com/ticketguy/Keepshot/lib/models"
)

type changeEmailFormat struct {
	*models.Bookmark
	*models.Notification
}

func (ef *changeEmailFormat) Subject() string {
	return fmt.Sprintf("Keepshot: %s", ef.Notification.Title)
}

func (ef *changeEmailFormat) Body() string {
	link := ef.Bookmark.URL
	if link == "" {
		link = ef.Bookmark.DisplayTitle()
	}
	return fmt.Sprintf(
		`
			<h3>Update on <a href="%s">%s</a>:</h3>
			<br>
			<p>%s</p>
		`,
		link, ef.Bookmark.DisplayTitle(),
		ef.Notification.Body,
	)
}

type verificationEmailFormat struct {
	verifyURL string
}

func (ef *verificationEmailFormat) Subject() string {
	return "Keepshot: Email verification required"
}

func (ef *verificationEmailFormat) Body() string {
	url := ef.verifyURL
	return fmt.Sprintf(`Click here to verify your email: <a href="%s">%s</a>`, url, url)
}
