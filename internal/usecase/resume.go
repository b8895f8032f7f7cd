package usecase

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/fairyhunter13/ai-interviewer/internal/domain"
)

// Placeholders returned when a field cannot be detected.
const (
	NameNotFound  = "Name not found"
	EmailNotFound = "Email not found"
	PhoneNotFound = "Phone not found"
)

var (
	resumeEmailPattern = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
	resumePhonePattern = regexp.MustCompile(`\b\d{3}[-.]?\d{3}[-.]?\d{4}\b|\(\d{3}\)\s*\d{3}[-.]?\d{4}`)

	resumeHeadings = []string{
		"resume", "curriculum", "vitae", "cv", "summary", "objective", "profile",
		"experience", "education", "skills", "projects", "contact", "references",
		"certifications", "languages", "about",
	}
)

// nameScanLines bounds how far down the document a name is looked for.
const nameScanLines = 10

// CandidateFields are the contact details detected in a resume.
type CandidateFields struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// ParsedResume is the result of resume intake.
type ParsedResume struct {
	Text          string          `json:"text"`
	FileType      string          `json:"fileType"`
	Extracted     CandidateFields `json:"extracted"`
	MissingFields []string        `json:"missingFields"`
}

// ResumeService extracts resume text and detects contact details.
type ResumeService struct {
	Extractor domain.TextExtractor
}

// NewResumeService constructs a ResumeService with its dependencies.
func NewResumeService(x domain.TextExtractor) ResumeService {
	return ResumeService{Extractor: x}
}

// Parse extracts the text of an uploaded resume and detects its fields.
func (s ResumeService) Parse(ctx domain.Context, fileName, fileType string, data []byte) (ParsedResume, error) {
	if len(data) == 0 {
		return ParsedResume{}, fmt.Errorf("%w: empty file", domain.ErrInvalidArgument)
	}
	text, err := s.Extractor.Extract(ctx, fileName, data)
	if err != nil {
		return ParsedResume{}, fmt.Errorf("op=resume.parse: %w", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return ParsedResume{}, fmt.Errorf("%w: no text could be extracted from %s", domain.ErrInvalidArgument, fileName)
	}
	fields := ExtractFields(text)
	return ParsedResume{
		Text:          text,
		FileType:      fileType,
		Extracted:     fields,
		MissingFields: MissingFields(fields),
	}, nil
}

// ExtractFields detects name, email and phone in resume text, using the
// not-found placeholders for fields that are absent.
func ExtractFields(text string) CandidateFields {
	f := CandidateFields{Name: NameNotFound, Email: EmailNotFound, Phone: PhoneNotFound}
	if m := resumeEmailPattern.FindString(text); m != "" {
		f.Email = m
	}
	if m := resumePhonePattern.FindString(text); m != "" {
		f.Phone = m
	}
	if n := detectName(text); n != "" {
		f.Name = n
	}
	return f
}

// detectName returns the first early line made of 2 to 4 capitalised
// alphabetic words that is not a section heading.
func detectName(text string) string {
	seen := 0
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if seen++; seen > nameScanLines {
			break
		}
		if looksLikeName(line) {
			return line
		}
	}
	return ""
}

func looksLikeName(line string) bool {
	words := strings.Fields(line)
	if len(words) < 2 || len(words) > 4 {
		return false
	}
	for _, w := range words {
		rs := []rune(w)
		if !unicode.IsUpper(rs[0]) {
			return false
		}
		for _, r := range rs {
			if !unicode.IsLetter(r) && r != '-' && r != '\'' {
				return false
			}
		}
		lw := strings.ToLower(w)
		for _, h := range resumeHeadings {
			if lw == h {
				return false
			}
		}
	}
	return true
}

// MissingFields lists the fields the candidate still has to provide.
func MissingFields(f CandidateFields) []string {
	missing := []string{}
	if fieldMissing(f.Name, ValidName) {
		missing = append(missing, "name")
	}
	if fieldMissing(f.Email, ValidEmail) {
		missing = append(missing, "email")
	}
	if fieldMissing(f.Phone, ValidPhone) {
		missing = append(missing, "phone")
	}
	return missing
}

func fieldMissing(v string, valid func(string) bool) bool {
	v = strings.TrimSpace(v)
	return v == "" || strings.Contains(strings.ToLower(v), "not found") || !valid(v)
}
