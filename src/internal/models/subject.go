package models

import "time"

type Subject struct {
	ID        string    `json:"id" bson:"_id"`
	TeacherID string    `json:"teacherId" bson:"teacher_id"`
	Name      string    `json:"name" bson:"name"`
	CRNNumber string    `json:"crnNumber" bson:"crn_number"`
	DayTime   string    `json:"dayTime" bson:"day_time"`
	CreatedAt time.Time `json:"createdAt" bson:"created_at"`
}

// CreateSubjectRequest represents request for creating a subject
type CreateSubjectRequest struct {
	Name      string `json:"name" binding:"required,max=200"`
	CRNNumber string `json:"crnNumber" binding:"required,max=50"`
	DayTime   string `json:"dayTime" binding:"required,max=100"`
}
