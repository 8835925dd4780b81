package scheduler

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const TaskAppointmentReminder = "hotleads.appointment_reminder"

const TaskNotificationOutboxDue = "notification.outbox.due"

// AppointmentReminderPayload identifies the appointment a reminder was
// scheduled for. A reminder whose appointment moved is dropped.
type AppointmentReminderPayload struct {
	HotLeadID     string    `json:"hotLeadId"`
	AppointmentAt time.Time `json:"appointmentAt"`
}

type NotificationOutboxDuePayload struct {
	OutboxID string `json:"outboxId"`
}

func NewAppointmentReminderTask(payload AppointmentReminderPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAppointmentReminder, data), nil
}

func ParseAppointmentReminderPayload(task *asynq.Task) (AppointmentReminderPayload, error) {
	var payload AppointmentReminderPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return AppointmentReminderPayload{}, err
	}
	return payload, nil
}

func NewNotificationOutboxDueTask(payload NotificationOutboxDuePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskNotificationOutboxDue, data), nil
}

func ParseNotificationOutboxDuePayload(task *asynq.Task) (NotificationOutboxDuePayload, error) {
	var payload NotificationOutboxDuePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return NotificationOutboxDuePayload{}, err
	}
	return payload, nil
}

// reminderTaskID makes repeated scheduling for the same appointment a no-op.
func reminderTaskID(payload AppointmentReminderPayload) string {
	return "reminder:" + payload.HotLeadID + ":" + payload.AppointmentAt.UTC().Format(time.RFC3339)
}
