package logger

// Standard field names for consistent logging.
const (
	FieldService       = "service"
	FieldOperation     = "operation"
	FieldError         = "error"
	FieldUserID        = "user_id"
	FieldChatID        = "chat_id"
	FieldMessageID     = "message_id"
	FieldReservationID = "reservation_id"
	FieldResourceID    = "resource_id"
	FieldJob           = "job"
)
