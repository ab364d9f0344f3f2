package advisor

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"strconv"
	"strings"
	"text/template"

	"github.com/xaenox/advising-bot/internal/models"
)

//go:embed prompts
var builtinPrompts embed.FS

// DefaultPromptVersion is the prompt set used when none is configured
const DefaultPromptVersion = "v7"

const notProvided = "not provided"

// GreetingMessage lists what the bot can help with. It is shown for greetings
// and off-topic questions.
const GreetingMessage = `I'm here to help you with a wide range of Computer Science advising topics:
💡 **Program Requirements**
- "What are the core competency areas for the MSCS program?"
- "How many courses are required to complete a Master's in Computer Science at Tufts?"
📌 **Academic Policies**
- "What is the transfer credit policy for Computer Science graduate students?"
- "What are the requirements for maintaining good academic standing in the graduate program?"
✍️ **Course-related Information**
- "Does taking CS160 count towards my graduation requirement?"
- "Can I take non-CS courses in my degree program?"
🌱 **Career Development**
- "What Co-op opportunities are available?"
- "Can international students do internships as part of the program?"
📝 **Administrative Questions**
- "When are the enrollment periods?"
- "What important dates should I keep in mind?"

 :kirby_fly: Want a **more personalized** advising experience? Share your program, completed courses, GPA or visa status. **Totally optional**!

 :kirby_type: To speak with a human advisor, just type: "**talk to a human advisor**"`

// CannedQuestions are offered as buttons after greetings and off-topic replies
var CannedQuestions = []string{
	"How do I fulfill the MS thesis requirement?",
	"What is the MS Project option and how does it differ from the thesis?",
	"What are the requirements for maintaining good academic standing in the graduate program?",
}

// PromptSet is one version of the system prompts
type PromptSet struct {
	Version string
	answer  *template.Template
	draft   *template.Template
}

// PromptData is what the templates are rendered with
type PromptData struct {
	Program    string
	Courses    string
	GPA        string
	VisaStatus string
	Credits    string
	FAQs       string
	Greeting   string
}

// LoadPromptSet reads <version>/answer.tmpl and <version>/draft.tmpl from
// fsys, or from the built-in prompts when fsys is nil.
func LoadPromptSet(fsys fs.FS, version string) (*PromptSet, error) {
	if version == "" {
		version = DefaultPromptVersion
	}

	root := fsys
	if root == nil {
		sub, err := fs.Sub(builtinPrompts, "prompts")
		if err != nil {
			return nil, err
		}
		root = sub
	}

	answer, err := template.ParseFS(root, path.Join(version, "answer.tmpl"))
	if err != nil {
		return nil, fmt.Errorf("load answer prompt %q: %w", version, err)
	}
	draft, err := template.ParseFS(root, path.Join(version, "draft.tmpl"))
	if err != nil {
		return nil, fmt.Errorf("load draft prompt %q: %w", version, err)
	}

	return &PromptSet{
		Version: version,
		answer:  answer.Option("missingkey=error"),
		draft:   draft.Option("missingkey=error"),
	}, nil
}

func (p *PromptSet) Answer(data PromptData) (string, error) {
	return render(p.answer, data)
}

func (p *PromptSet) Draft(data PromptData) (string, error) {
	return render(p.draft, data)
}

func render(t *template.Template, data PromptData) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render prompt %s: %w", t.Name(), err)
	}
	return buf.String(), nil
}

// NewPromptData formats a profile and the FAQ list for the templates
func NewPromptData(profile *models.UserProfile, faqs []*models.FAQEntry) PromptData {
	data := PromptData{
		Program:    notProvided,
		Courses:    notProvided,
		GPA:        notProvided,
		VisaStatus: notProvided,
		Credits:    notProvided,
		FAQs:       formatFAQs(faqs),
		Greeting:   GreetingMessage,
	}
	if profile == nil {
		return data
	}

	t := profile.Transcript
	if t.Program != "" {
		data.Program = t.Program
	}
	if len(t.CompletedCourses) > 0 {
		data.Courses = formatCourses(t.CompletedCourses)
	}
	if t.GPA > 0 {
		data.GPA = strconv.FormatFloat(t.GPA, 'f', 2, 64)
	}
	if t.Domestic != nil {
		if *t.Domestic {
			data.VisaStatus = "domestic student"
		} else {
			data.VisaStatus = "international student"
		}
	}
	if t.CreditsEarned > 0 {
		data.Credits = strconv.FormatFloat(t.CreditsEarned, 'f', -1, 64)
	}
	return data
}

func formatCourses(courses []models.Course) string {
	parts := make([]string, 0, len(courses))
	for _, c := range courses {
		entry := c.CourseID
		if c.CourseName != "" {
			entry += " " + c.CourseName
		}
		if c.Grade != "" {
			entry += " (grade: " + c.Grade + ")"
		}
		parts = append(parts, strings.TrimSpace(entry))
	}
	return strings.Join(parts, ", ")
}

func formatFAQs(faqs []*models.FAQEntry) string {
	lines := make([]string, 0, len(faqs))
	for _, f := range faqs {
		lines = append(lines, fmt.Sprintf("%d: %s", f.QuestionID, f.Question))
	}
	return strings.Join(lines, "\n")
}
