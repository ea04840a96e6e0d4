package quiz

import "time"

const (
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
)

type Quiz struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	Subject       string    `json:"subject"`
	CreatedBy     string    `json:"created_by"`
	TimeLimit     int       `json:"time_limit"` // minutes
	TotalMarks    int       `json:"total_marks"`
	IsPublished   bool      `json:"is_published"`
	IsActive      bool      `json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	QuestionCount int       `json:"question_count"`
}

// QuizPatch carries a partial update; nil fields are left alone.
type QuizPatch struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Subject     *string `json:"subject,omitempty"`
	TimeLimit   *int    `json:"time_limit,omitempty"`
	TotalMarks  *int    `json:"total_marks,omitempty"`
	IsPublished *bool   `json:"is_published,omitempty"`
	IsActive    *bool   `json:"is_active,omitempty"`
}

type Question struct {
	ID            string `json:"id"`
	QuizID        string `json:"quiz_id"`
	Text          string `json:"question_text"`
	OptionA       string `json:"option_a"`
	OptionB       string `json:"option_b"`
	OptionC       string `json:"option_c"`
	OptionD       string `json:"option_d"`
	CorrectOption string `json:"correct_option,omitempty"`
	Marks         int    `json:"marks"`
	Explanation   string `json:"explanation,omitempty"`
	Order         int    `json:"question_order"`
}

// Public strips the answer key for students taking the quiz.
func (q Question) Public() Question {
	q.CorrectOption = ""
	q.Explanation = ""
	return q
}

type QuestionPatch struct {
	Text          *string `json:"question_text,omitempty"`
	OptionA       *string `json:"option_a,omitempty"`
	OptionB       *string `json:"option_b,omitempty"`
	OptionC       *string `json:"option_c,omitempty"`
	OptionD       *string `json:"option_d,omitempty"`
	CorrectOption *string `json:"correct_option,omitempty"`
	Marks         *int    `json:"marks,omitempty"`
	Explanation   *string `json:"explanation,omitempty"`
	Order         *int    `json:"question_order,omitempty"`
}

type Attempt struct {
	ID          string     `json:"id"`
	StudentID   string     `json:"student_id"`
	QuizID      string     `json:"quiz_id"`
	Score       int        `json:"score"`
	Percentage  float64    `json:"percentage"`
	Status      string     `json:"status"` // in_progress|completed
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	TimeTaken   int        `json:"time_taken"` // seconds

	// joined for listings
	QuizTitle    string `json:"quiz_title,omitempty"`
	QuizSubject  string `json:"quiz_subject,omitempty"`
	TotalMarks   int    `json:"total_marks,omitempty"`
	StudentName  string `json:"student_name,omitempty"`
	StudentEmail string `json:"student_email,omitempty"`
}

func (a Attempt) Completed() bool { return a.Status == StatusCompleted }

type Answer struct {
	ID             string    `json:"id"`
	AttemptID      string    `json:"attempt_id"`
	QuestionID     string    `json:"question_id"`
	SelectedOption string    `json:"selected_option"`
	IsCorrect      bool      `json:"is_correct"`
	MarksObtained  int       `json:"marks_obtained"`
	AnsweredAt     time.Time `json:"answered_at"`
}

type AnswerInput struct {
	QuestionID     string `json:"question_id"`
	SelectedOption string `json:"selected_option"`
}

// GradedAnswer is what CompleteAttempt writes back per answered question.
type GradedAnswer struct {
	QuestionID     string
	SelectedOption string
	IsCorrect      bool
	MarksObtained  int
}

type ListOpts struct {
	PublishedOnly bool   // published and active
	CreatedBy     string // admin "my quizzes"
	Subject       string
	Limit         int
	Offset        int
}

type AttemptListOpts struct {
	QuizID    string
	StudentID string
	Status    string // optional: in_progress|completed
	Limit     int
	Offset    int
}
