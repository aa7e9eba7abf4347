package models

// TeacherMode selects what kind of utterance the teacher agent is asked to
// produce in a cycle.
type TeacherMode string

const (
	TeacherLectureDelivery      TeacherMode = "lecture_delivery"
	TeacherClarificationDialog  TeacherMode = "clarification_dialogue"
	TeacherBehaviorIntervention TeacherMode = "behavior_intervention"
	TeacherEngagementJoke       TeacherMode = "engagement_joke"
	TeacherKnowledgeCheckPraise TeacherMode = "knowledge_check_praise"
	TeacherLessonClosure        TeacherMode = "lesson_closure"
)
