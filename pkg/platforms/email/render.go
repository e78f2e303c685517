package email

import (
	"bytes"
	"html/template"
	"time"

	"github.com/kart-io/notifyrelay/pkg/errors"
	"github.com/kart-io/notifyrelay/pkg/notification"
)

// DefaultSubject is the subject line of every notification email.
const DefaultSubject = "New Notification"

var bodyTemplate = template.Must(template.New("notification").Parse(
	`<p>{{.Message}}</p>
<p><small>Created at {{.CreatedAt}}</small></p>
`))

// RenderBody renders the HTML body for n. The message text is escaped.
func RenderBody(n *notification.Notification) (string, error) {
	var buf bytes.Buffer
	err := bodyTemplate.Execute(&buf, struct {
		Message   string
		CreatedAt string
	}{
		Message:   n.Message,
		CreatedAt: n.CreatedAt.Format(time.RFC3339),
	})
	if err != nil {
		return "", errors.Wrap(err, errors.ErrDurableRenderFailed, "render notification body")
	}
	return buf.String(), nil
}
