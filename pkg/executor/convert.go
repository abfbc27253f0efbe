package executor

import (
	"strings"

	"github.com/cucumber/godog"
	messages "github.com/cucumber/messages/go/v21"

	"github.com/devicelab-dev/parabank-e2e/pkg/core"
)

// stepStatus converts a godog step status to core.StepStatus.
// Pending and ambiguous steps fail a strict run, so they are reported as
// undefined and failed respectively.
func stepStatus(s godog.StepResultStatus) core.StepStatus {
	switch s {
	case godog.StepPassed:
		return core.StatusPassed
	case godog.StepFailed, godog.StepAmbiguous:
		return core.StatusFailed
	case godog.StepSkipped:
		return core.StatusSkipped
	case godog.StepUndefined, godog.StepPending:
		return core.StatusUndefined
	default:
		return core.StatusErrored
	}
}

// typeKeyword is used when the feature source is not in the catalog.
func typeKeyword(t messages.PickleStepType) string {
	switch t {
	case messages.PickleStepType_CONTEXT:
		return "Given "
	case messages.PickleStepType_ACTION:
		return "When "
	case messages.PickleStepType_OUTCOME:
		return "Then "
	default:
		return "* "
	}
}

// attachments converts godog attachments. PNG bodies become screenshots.
func attachments(in []godog.Attachment) []core.Attachment {
	if len(in) == 0 {
		return nil
	}
	out := make([]core.Attachment, 0, len(in))
	for _, a := range in {
		if a.MediaType == core.ContentTypePNG {
			out = append(out, core.NewScreenshotAttachment(a.FileName, a.Body))
			continue
		}
		out = append(out, core.Attachment{
			Name:        a.FileName,
			ContentType: a.MediaType,
			Body:        a.Body,
		})
	}
	return out
}

func tagNames(tags []*messages.PickleTag) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		out = append(out, t.Name)
	}
	return out
}

// featureInfo is what the catalog knows about one feature file.
type featureInfo struct {
	name     string
	keywords map[string]string // AST step id -> keyword as written
}

// catalog maps feature URIs to their parsed source. Pickles carry neither
// the feature name nor the written keyword (And, But), so both come from
// a parse of the same paths; ids are assigned in the same order.
type catalog map[string]featureInfo

func (c catalog) add(doc *messages.GherkinDocument) {
	if doc == nil || doc.Feature == nil {
		return
	}
	info := featureInfo{name: doc.Feature.Name, keywords: map[string]string{}}
	addSteps := func(steps []*messages.Step) {
		for _, st := range steps {
			info.keywords[st.Id] = st.Keyword
		}
	}
	for _, child := range doc.Feature.Children {
		switch {
		case child.Background != nil:
			addSteps(child.Background.Steps)
		case child.Scenario != nil:
			addSteps(child.Scenario.Steps)
		case child.Rule != nil:
			for _, rc := range child.Rule.Children {
				if rc.Background != nil {
					addSteps(rc.Background.Steps)
				}
				if rc.Scenario != nil {
					addSteps(rc.Scenario.Steps)
				}
			}
		}
	}
	c[doc.Uri] = info
}

// feature returns the feature name for uri, falling back to the file name.
func (c catalog) feature(uri string) string {
	if info, ok := c[uri]; ok && info.name != "" {
		return info.name
	}
	base := uri[strings.LastIndex(uri, "/")+1:]
	return strings.TrimSuffix(base, ".feature")
}

func (c catalog) keyword(uri string, st *godog.Step) string {
	if info, ok := c[uri]; ok && len(st.AstNodeIds) > 0 {
		if kw, ok := info.keywords[st.AstNodeIds[0]]; ok {
			return kw
		}
	}
	return typeKeyword(st.Type)
}
