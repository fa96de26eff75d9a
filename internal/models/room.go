package models

// Realtime room names.
const (
	RoomInstructors = "instructors"
	RoomAdmins      = "admins"
)

// UserRoom addresses every live session of a user.
func UserRoom(userID string) string { return "user-" + userID }

// RoleRoom addresses every session authenticated with role.
func RoleRoom(role UserRole) string { return "role-" + string(role) }

// LessonRoom carries updates for one booking.
func LessonRoom(bookingID string) string { return "lesson-" + bookingID }

// AssignmentRoom carries messages between an assigned learner and instructor.
func AssignmentRoom(assignmentID string) string { return "assignment-" + assignmentID }

// RoomsFor lists the rooms a freshly authenticated session joins.
func RoomsFor(identity Identity) []string {
	rooms := []string{UserRoom(identity.UserID), RoleRoom(identity.Role)}
	switch {
	case identity.Role == RoleInstructor:
		rooms = append(rooms, RoomInstructors)
	case identity.Role.Elevated():
		rooms = append(rooms, RoomAdmins)
	}
	return rooms
}
