// Package render turns placements into the CSS that paints a replacement
// picture over its target.
package render

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"text/template"

	sprig "github.com/go-task/slim-sprig/v3"
	"github.com/google/uuid"

	"github.com/menta2k/image-placer/pkg/placement"
	"github.com/menta2k/image-placer/pkg/provider"
)

// ContainerPrefix starts the id of every generated container element
const ContainerPrefix = "picreplacement-"

const ruleTemplate = `{{- with .Candidate.Title }}/* {{ sanitize . }}{{ with $.Candidate.AttributionURL }} ({{ sanitize . }}){{ end }} */
{{ end -}}
#{{ .ContainerID }} {
  position: {{ .Position | default "static" }};
  box-sizing: content-box;
  overflow: hidden;
  width: {{ .Placement.VisibleWidth }}px;
  height: {{ .Placement.VisibleHeight }}px;
  margin: {{ .Placement.PaddingTop }}px 0 0 {{ .Placement.PaddingLeft }}px;
  background-image: url({{ .Candidate.URL | quote }});
  background-repeat: no-repeat;
  background-size: {{ .Placement.ScaledWidth }}px {{ .Placement.ScaledHeight }}px;
  background-position: {{ neg .Placement.CropOffsetLeft }}px {{ neg .Placement.CropOffsetTop }}px;
}
`

// Replacement is everything needed to paint one picture over one element
type Replacement struct {
	ElementID   string              `json:"element_id,omitempty"`
	ContainerID string              `json:"container_id"`
	Position    string              `json:"position"`
	Candidate   provider.Candidate  `json:"candidate"`
	Placement   placement.Placement `json:"placement"`
}

// Renderer generates CSS rules for replacements
type Renderer struct {
	tmpl  *template.Template
	newID func() string
}

// New creates a renderer with random container ids
func New() *Renderer {
	return NewWithIDs(uuid.NewString)
}

// NewWithIDs creates a renderer taking container ids from newID
func NewWithIDs(newID func() string) *Renderer {
	funcs := sprig.TxtFuncMap()
	funcs["neg"] = func(v int) int { return -v }
	funcs["sanitize"] = func(s string) string {
		return strings.ReplaceAll(s, "*/", "* /")
	}
	return &Renderer{
		tmpl:  template.Must(template.New("rule").Funcs(funcs).Parse(ruleTemplate)),
		newID: newID,
	}
}

// Assign gives rep a container id unless it already has one
func (r *Renderer) Assign(rep *Replacement) {
	if rep.ContainerID == "" {
		rep.ContainerID = ContainerPrefix + r.newID()
	}
}

// Render returns the CSS block for rep, assigning a container id if needed
func (r *Renderer) Render(rep *Replacement) (string, error) {
	r.Assign(rep)

	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, rep); err != nil {
		return "", fmt.Errorf("failed to render css for %s: %w", rep.ContainerID, err)
	}
	return buf.String(), nil
}

// HideRule returns the rule that hides the original elements
func HideRule(elementIDs []string) string {
	if len(elementIDs) == 0 {
		return ""
	}
	var buf bytes.Buffer
	for i, id := range elementIDs {
		if i > 0 {
			buf.WriteString(",\n")
		}
		buf.WriteString(idSelector(id))
	}
	buf.WriteString(" {\n  display: none !important;\n}\n")
	return buf.String()
}

var plainID = regexp.MustCompile(`^-?[_a-zA-Z][_a-zA-Z0-9-]*$`)

var attrEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\a `)

// idSelector selects the element with the given id; ids that are not plain
// CSS identifiers are matched through the id attribute.
func idSelector(id string) string {
	if plainID.MatchString(id) {
		return "#" + id
	}
	return `[id="` + attrEscaper.Replace(id) + `"]`
}
