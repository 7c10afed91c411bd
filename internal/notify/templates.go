package notify

import (
	"bytes"
	"errors"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"

	"github.com/ukydev/camperwash/internal/models"
)

const newStationSubject = `Nouvelle station à valider : {{.Name}}`

const newStationHTML = `<h2>Nouvelle station soumise</h2>
<p><strong>Nom :</strong> {{.Name}}</p>
<p><strong>Adresse :</strong> {{.Address}}</p>
{{- if .Author}}
<p><strong>Proposée par :</strong> {{if .Author.Name}}{{deref .Author.Name}} ({{.Author.Email}}){{else}}{{.Author.Email}}{{end}}</p>
{{- end}}
{{- if .Services}}
<p><strong>Services :</strong></p>
<ul>
{{- range serviceLines .Services}}
<li>{{.}}</li>
{{- end}}
</ul>
{{- end}}
<p>Cette station est en attente de validation dans l'espace d'administration.</p>`

const newStationText = `Nouvelle station soumise
Nom : {{.Name}}
Adresse : {{.Address}}
{{- if .Author}}
Proposée par : {{if .Author.Name}}{{deref .Author.Name}} ({{.Author.Email}}){{else}}{{.Author.Email}}{{end}}
{{- end}}
{{- if .Services}}
Services :
{{- range serviceLines .Services}}
- {{.}}
{{- end}}
{{- end}}
Cette station est en attente de validation dans l'espace d'administration.`

const contactAdminSubject = `Nouveau message: {{.Subject}}`

const contactAdminHTML = `<h2>Nouveau message de contact</h2>
<p><strong>De:</strong> {{.Name}} ({{.Email}})</p>
<p><strong>Sujet:</strong> {{.Subject}}</p>
<p><strong>Message:</strong></p>
<p>{{.Message}}</p>`

const contactAdminText = `Nouveau message de contact
De: {{.Name}} ({{.Email}})
Sujet: {{.Subject}}
Message:
{{.Message}}`

const contactConfirmSubject = `Nous avons bien reçu votre message`

const contactConfirmHTML = `<h2>Merci de nous avoir contacté</h2>
<p>Bonjour {{.Name}},</p>
<p>Nous avons bien reçu votre message concernant "{{.Subject}}".</p>
<p>Notre équipe vous répondra dans les plus brefs délais.</p>
<p>Cordialement,<br>L'équipe CamperWash</p>`

const contactConfirmText = `Merci de nous avoir contacté

Bonjour {{.Name}},
Nous avons bien reçu votre message concernant "{{.Subject}}".
Notre équipe vous répondra dans les plus brefs délais.

Cordialement,
L'équipe CamperWash`

const statusChangedSubject = `Votre station « {{.StationName}} » a été {{statusLabel .Status}}`

const statusChangedHTML = `<h2>Mise à jour de votre station</h2>
<p>Bonjour,</p>
<p>La station « {{.StationName}} » que vous avez proposée a été {{statusLabel .Status}}.</p>
<p>Cordialement,<br>L'équipe CamperWash</p>`

const statusChangedText = `Mise à jour de votre station

Bonjour,
La station « {{.StationName}} » que vous avez proposée a été {{statusLabel .Status}}.

Cordialement,
L'équipe CamperWash`

var funcs = map[string]interface{}{
	"deref":        func(s *string) string { return *s },
	"serviceLines": serviceLines,
	"statusLabel":  statusLabel,
}

// serviceLines lists the offered services in French, skipping absent ones.
func serviceLines(s *models.ServiceProfile) []string {
	var lines []string
	if s.HighPressure != "" && s.HighPressure != models.HighPressureNone {
		lines = append(lines, "Haute pression: "+string(s.HighPressure))
	}
	if s.TirePressure {
		lines = append(lines, "Pression des pneus")
	}
	if s.Vacuum {
		lines = append(lines, "Aspirateur")
	}
	if s.HandicapAccess {
		lines = append(lines, "Accès handicapé")
	}
	if s.WasteWater {
		lines = append(lines, "Eaux usées")
	}
	if s.Electricity != "" && s.Electricity != models.ElectricityNone {
		lines = append(lines, "Électricité: "+string(s.Electricity))
	}
	if len(s.PaymentMethods) > 0 {
		methods := make([]string, 0, len(s.PaymentMethods))
		for _, m := range s.PaymentMethods {
			methods = append(methods, string(m))
		}
		lines = append(lines, "Paiement: "+strings.Join(methods, ", "))
	}
	return lines
}

func statusLabel(status models.StationStatus) string {
	switch status {
	case models.StatusActive:
		return "validée"
	case models.StatusInactive:
		return "désactivée"
	default:
		return "remise en attente"
	}
}

// Template renders the subject, HTML body and plain-text alternative of one message kind.
// User-supplied values are escaped in the HTML body.
type Template struct {
	subject *texttemplate.Template
	html    *htmltemplate.Template
	text    *texttemplate.Template
}

// NewTemplate parses the three parts of a message.
func NewTemplate(name, subject, html, text string) (*Template, error) {
	subj, err := texttemplate.New(name + "-subject").Funcs(funcs).Parse(subject)
	if err != nil {
		return nil, err
	}
	h, err := htmltemplate.New(name + "-html").Funcs(funcs).Parse(html)
	if err != nil {
		return nil, err
	}
	t, err := texttemplate.New(name + "-text").Funcs(funcs).Parse(text)
	if err != nil {
		return nil, err
	}
	return &Template{subject: subj, html: h, text: t}, nil
}

// Render applies the template to data.
func (t *Template) Render(data interface{}) (subject, html, text string, err error) {
	if t == nil {
		return "", "", "", errors.New("notification template: nil")
	}
	var buf bytes.Buffer
	if err := t.subject.Execute(&buf, data); err != nil {
		return "", "", "", err
	}
	// header injection guard
	subject = strings.Join(strings.Fields(buf.String()), " ")

	buf.Reset()
	if err := t.html.Execute(&buf, data); err != nil {
		return "", "", "", err
	}
	html = buf.String()

	buf.Reset()
	if err := t.text.Execute(&buf, data); err != nil {
		return "", "", "", err
	}
	return subject, html, buf.String(), nil
}

type templateSet struct {
	newStation     *Template
	contactAdmin   *Template
	contactConfirm *Template
	statusChanged  *Template
}

func parseTemplates() (*templateSet, error) {
	var (
		set templateSet
		err error
	)
	if set.newStation, err = NewTemplate("new-station", newStationSubject, newStationHTML, newStationText); err != nil {
		return nil, err
	}
	if set.contactAdmin, err = NewTemplate("contact-admin", contactAdminSubject, contactAdminHTML, contactAdminText); err != nil {
		return nil, err
	}
	if set.contactConfirm, err = NewTemplate("contact-confirm", contactConfirmSubject, contactConfirmHTML, contactConfirmText); err != nil {
		return nil, err
	}
	if set.statusChanged, err = NewTemplate("status-changed", statusChangedSubject, statusChangedHTML, statusChangedText); err != nil {
		return nil, err
	}
	return &set, nil
}
