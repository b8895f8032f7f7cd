package mongo

import (
	"encoding/json"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/fairyhunter13/ai-interviewer/internal/domain"
)

type resumeDoc struct {
	Text       string    `bson:"text,omitempty"`
	Data       bson.D    `bson:"data,omitempty"`
	FileType   string    `bson:"fileType,omitempty"`
	UploadedAt time.Time `bson:"uploadDate,omitempty"`
}

type userDoc struct {
	ID        string     `bson:"_id"`
	Name      string     `bson:"name"`
	Email     string     `bson:"email"`
	Phone     string     `bson:"phone"`
	Resume    *resumeDoc `bson:"resumeData,omitempty"`
	IsActive  bool       `bson:"isActive"`
	CreatedAt time.Time  `bson:"createdAt"`
	UpdatedAt time.Time  `bson:"updatedAt"`
}

type sessionDoc struct {
	ID        string    `bson:"_id"`
	UserID    string    `bson:"userId"`
	Email     string    `bson:"email"`
	Data      bson.D    `bson:"sessionData"`
	IsActive  bool      `bson:"isActive"`
	ExpiresAt time.Time `bson:"expiresAt"`
	CreatedAt time.Time `bson:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

type candidateDoc struct {
	Name       string `bson:"name"`
	Email      string `bson:"email"`
	Phone      string `bson:"phone"`
	ResumeText string `bson:"resumeText,omitempty"`
}

type slotDoc struct {
	ID         int      `bson:"id"`
	Question   string   `bson:"question"`
	Difficulty string   `bson:"difficulty"`
	TimeLimit  int      `bson:"timeLimit"`
	Answered   bool     `bson:"answered"`
	Answer     *string  `bson:"answer"`
	Score      *float64 `bson:"score"`
	TimeTaken  *int     `bson:"timeTaken"`
	Feedback   *string  `bson:"feedback"`
	TimedOut   bool     `bson:"timedOut"`
}

type attemptDoc struct {
	ID           string       `bson:"_id"`
	UserID       string       `bson:"userId"`
	Candidate    candidateDoc `bson:"candidateInfo"`
	Questions    []slotDoc    `bson:"questions"`
	TotalScore   float64      `bson:"totalScore"`
	AverageScore float64      `bson:"averageScore"`
	Status       string       `bson:"status"`
	StartedAt    time.Time    `bson:"startedAt"`
	CompletedAt  *time.Time   `bson:"completedAt"`
	Duration     *int         `bson:"duration"`
	ResumeCount  int          `bson:"resumeCount"`
	ResumedFrom  string       `bson:"resumedFrom,omitempty"`
	CreatedAt    time.Time    `bson:"createdAt"`
	UpdatedAt    time.Time    `bson:"updatedAt"`
	Version      int64        `bson:"version"`
}

// rawToDoc converts a JSON object into a BSON document. Empty input yields nil.
func rawToDoc(raw json.RawMessage) (bson.D, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var d bson.D
	if err := bson.UnmarshalExtJSON(raw, false, &d); err != nil {
		return nil, fmt.Errorf("%w: payload must be a JSON object: %v", domain.ErrInvalidArgument, err)
	}
	return d, nil
}

// docToRaw converts a BSON document back into relaxed JSON.
func docToRaw(d bson.D) (json.RawMessage, error) {
	if d == nil {
		return nil, nil
	}
	b, err := bson.MarshalExtJSON(d, false, false)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(b), nil
}

func toUserDoc(u domain.User) (userDoc, error) {
	doc := userDoc{
		ID: u.ID, Name: u.Name, Email: u.Email, Phone: u.Phone,
		IsActive: u.IsActive, CreatedAt: u.CreatedAt, UpdatedAt: u.UpdatedAt,
	}
	if u.Resume != nil {
		data, err := rawToDoc(u.Resume.Data)
		if err != nil {
			return userDoc{}, err
		}
		doc.Resume = &resumeDoc{Text: u.Resume.Text, Data: data, FileType: u.Resume.FileType, UploadedAt: u.Resume.UploadedAt}
	}
	return doc, nil
}

func (d userDoc) toDomain() (domain.User, error) {
	u := domain.User{
		ID: d.ID, Name: d.Name, Email: d.Email, Phone: d.Phone,
		IsActive: d.IsActive, CreatedAt: d.CreatedAt.UTC(), UpdatedAt: d.UpdatedAt.UTC(),
	}
	if d.Resume != nil {
		data, err := docToRaw(d.Resume.Data)
		if err != nil {
			return domain.User{}, err
		}
		u.Resume = &domain.Resume{Text: d.Resume.Text, Data: data, FileType: d.Resume.FileType, UploadedAt: d.Resume.UploadedAt.UTC()}
	}
	return u, nil
}

func toSessionDoc(s domain.Session) (sessionDoc, error) {
	data, err := rawToDoc(s.Data)
	if err != nil {
		return sessionDoc{}, err
	}
	if data == nil {
		data = bson.D{}
	}
	return sessionDoc{
		ID: s.ID, UserID: s.UserID, Email: s.Email, Data: data, IsActive: s.IsActive,
		ExpiresAt: s.ExpiresAt, CreatedAt: s.CreatedAt, UpdatedAt: s.UpdatedAt,
	}, nil
}

func (d sessionDoc) toDomain() (domain.Session, error) {
	data, err := docToRaw(d.Data)
	if err != nil {
		return domain.Session{}, err
	}
	return domain.Session{
		ID: d.ID, UserID: d.UserID, Email: d.Email, Data: data, IsActive: d.IsActive,
		ExpiresAt: d.ExpiresAt.UTC(), CreatedAt: d.CreatedAt.UTC(), UpdatedAt: d.UpdatedAt.UTC(),
	}, nil
}

func toAttemptDoc(a domain.Attempt) attemptDoc {
	doc := attemptDoc{
		ID:     a.ID,
		UserID: a.UserID,
		Candidate: candidateDoc{
			Name: a.Candidate.Name, Email: a.Candidate.Email,
			Phone: a.Candidate.Phone, ResumeText: a.Candidate.ResumeText,
		},
		Questions:    make([]slotDoc, 0, len(a.Questions)),
		TotalScore:   a.TotalScore,
		AverageScore: a.AverageScore,
		Status:       string(a.Status),
		StartedAt:    a.StartedAt,
		CompletedAt:  a.CompletedAt,
		Duration:     a.Duration,
		ResumeCount:  a.ResumeCount,
		ResumedFrom:  a.ResumedFrom,
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
		Version:      a.Version,
	}
	for _, s := range a.Questions {
		doc.Questions = append(doc.Questions, slotDoc{
			ID: s.ID, Question: s.Question, Difficulty: string(s.Difficulty), TimeLimit: s.TimeLimit,
			Answered: s.Answered, Answer: s.Answer, Score: s.Score, TimeTaken: s.TimeTaken,
			Feedback: s.Feedback, TimedOut: s.TimedOut,
		})
	}
	return doc
}

func (d attemptDoc) toDomain() domain.Attempt {
	a := domain.Attempt{
		ID:     d.ID,
		UserID: d.UserID,
		Candidate: domain.CandidateInfo{
			Name: d.Candidate.Name, Email: d.Candidate.Email,
			Phone: d.Candidate.Phone, ResumeText: d.Candidate.ResumeText,
		},
		Questions:    make([]domain.Slot, 0, len(d.Questions)),
		TotalScore:   d.TotalScore,
		AverageScore: d.AverageScore,
		Status:       domain.AttemptStatus(d.Status),
		StartedAt:    d.StartedAt.UTC(),
		Duration:     d.Duration,
		ResumeCount:  d.ResumeCount,
		ResumedFrom:  d.ResumedFrom,
		CreatedAt:    d.CreatedAt.UTC(),
		UpdatedAt:    d.UpdatedAt.UTC(),
		Version:      d.Version,
	}
	if d.CompletedAt != nil {
		at := d.CompletedAt.UTC()
		a.CompletedAt = &at
	}
	for _, s := range d.Questions {
		a.Questions = append(a.Questions, domain.Slot{
			ID: s.ID, Question: s.Question, Difficulty: domain.Difficulty(s.Difficulty), TimeLimit: s.TimeLimit,
			Answered: s.Answered, Answer: s.Answer, Score: s.Score, TimeTaken: s.TimeTaken,
			Feedback: s.Feedback, TimedOut: s.TimedOut,
		})
	}
	return a
}
