package server

import (
	"net/http"
	"time"

	"planet-chat/domain"
)

// ClientMessage is the envelope every frame from a client arrives in.
// Exactly one operation pointer is set per frame; Id correlates the
// eventual response.
type ClientMessage struct {
	Id              int              `json:"id,omitempty"`
	Enter           *Enter           `json:"enter,omitempty"`
	Leave           *Leave           `json:"leave,omitempty"`
	Publish         *Publish         `json:"publish,omitempty"`
	LoadOlder       *LoadOlder       `json:"load_older,omitempty"`
	ListRooms       *ListRooms       `json:"list_rooms,omitempty"`
	CreateRoom      *CreateRoom      `json:"create_room,omitempty"`
	SetMacro        *SetMacro        `json:"set_macro,omitempty"`
	UseMacro        *UseMacro        `json:"use_macro,omitempty"`
	Gift            *Gift            `json:"gift,omitempty"`
	ScheduleDestroy *ScheduleDestroy `json:"schedule_destroy,omitempty"`
	DestroyNow      *DestroyNow      `json:"destroy_now,omitempty"`
	Search          *Search          `json:"search,omitempty"`
}

type Enter struct {
	RoomId string `json:"room_id" validate:"required"`
}

type Leave struct {
	RoomId string `json:"room_id" validate:"required"`
}

type Publish struct {
	RoomId string `json:"room_id" validate:"required"`
	Body   string `json:"body" validate:"required,max=500"`
}

type LoadOlder struct {
	RoomId string `json:"room_id" validate:"required"`
}

type ListRooms struct{}

type CreateRoom struct {
	Title string `json:"title" validate:"required,max=60"`
	Icon  string `json:"icon" validate:"max=16"`
}

type SetMacro struct {
	Manual    []string `json:"manual" validate:"max=6,dive,max=200"`
	Automatic []string `json:"automatic" validate:"max=6,dive,max=200"`
}

type UseMacro struct {
	Slot int `json:"slot" validate:"gte=0,lt=6"`
}

type Gift struct {
	RoomId   string `json:"room_id" validate:"required"`
	ToUserId string `json:"to_user_id" validate:"required"`
}

type ScheduleDestroy struct {
	RoomId string `json:"room_id" validate:"required"`
}

type DestroyNow struct {
	RoomId string `json:"room_id" validate:"required"`
}

type Search struct {
	RoomId string `json:"room_id" validate:"required"`
	Terms  string `json:"terms" validate:"required,max=200"`
	Limit  int    `json:"limit" validate:"gte=0,lte=100"`
}

// ServerMessage is the envelope for everything pushed to a client:
// responses to its own operations plus unsolicited room traffic.
type ServerMessage struct {
	Id        int       `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`

	Response  *Response     `json:"response,omitempty"`
	Message   *MessageFrame `json:"message,omitempty"`
	History   *History      `json:"history,omitempty"`
	Occupancy *Occupancy    `json:"occupancy,omitempty"`
	Notice    *Notice       `json:"notice,omitempty"`
	Warning   *WarningFrame `json:"warning,omitempty"`
	Muted     *MutedFrame   `json:"muted,omitempty"`
	Rooms     *RoomList     `json:"rooms,omitempty"`
	Hits      *SearchHits   `json:"hits,omitempty"`
}

type Response struct {
	ResponseCode int            `json:"response_code"`
	Error        string         `json:"error,omitempty"`
	Data         map[string]any `json:"data,omitempty"`
}

type MessageFrame struct {
	Id          string    `json:"id"`
	RoomId      string    `json:"room_id"`
	SenderId    string    `json:"sender_id"`
	SenderName  string    `json:"sender_name"`
	SenderLevel int       `json:"sender_level"`
	Body        string    `json:"body"`
	SentAt      time.Time `json:"sent_at"`
	Local       bool      `json:"local,omitempty"`
}

type History struct {
	RoomId   string         `json:"room_id"`
	Messages []MessageFrame `json:"messages"`
	HasMore  bool           `json:"has_more"`
}

type Occupancy struct {
	RoomId string `json:"room_id"`
	Count  int    `json:"count"`
}

type Notice struct {
	RoomId string `json:"room_id"`
	Text   string `json:"text"`
}

type WarningFrame struct {
	RoomId   string `json:"room_id"`
	Notice   string `json:"notice"`
	Warnings int    `json:"warnings"`
}

type MutedFrame struct {
	RoomId     string    `json:"room_id"`
	MutedUntil time.Time `json:"muted_until"`
}

type RoomList struct {
	Rooms []RoomSummary `json:"rooms"`
}

type RoomSummary struct {
	Id            string     `json:"id"`
	Title         string     `json:"title"`
	Icon          string     `json:"icon,omitempty"`
	OwnerId       string     `json:"owner_id"`
	OccupantCount int        `json:"occupant_count"`
	DestroyAt     *time.Time `json:"destroy_at,omitempty"`
}

type SearchHits struct {
	RoomId string      `json:"room_id"`
	Hits   []SearchHit `json:"hits"`
}

type SearchHit struct {
	MessageId  string    `json:"message_id"`
	SenderName string    `json:"sender_name"`
	Body       string    `json:"body"`
	SentAt     time.Time `json:"sent_at"`
}

func toMessageFrame(msg domain.Message) MessageFrame {
	return MessageFrame{
		Id:          msg.ID.String(),
		RoomId:      string(msg.Room),
		SenderId:    msg.SenderID,
		SenderName:  msg.SenderName,
		SenderLevel: msg.SenderLevel,
		Body:        msg.Body,
		SentAt:      msg.SentAt,
		Local:       msg.Local,
	}
}

func toMessageFrames(msgs []domain.Message) []MessageFrame {
	frames := make([]MessageFrame, len(msgs))
	for i, msg := range msgs {
		frames[i] = toMessageFrame(msg)
	}
	return frames
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}

func NoErrOK(id int, data map[string]any) *ServerMessage {
	return &ServerMessage{
		Id:        id,
		Timestamp: Now(),
		Response: &Response{
			ResponseCode: http.StatusOK,
			Data:         data,
		},
	}
}

func errResponse(id, code int, text string) *ServerMessage {
	return &ServerMessage{
		Id:        id,
		Timestamp: Now(),
		Response: &Response{
			ResponseCode: code,
			Error:        text,
		},
	}
}

func ErrInvalidMessage(id int) *ServerMessage {
	return errResponse(id, http.StatusBadRequest, "invalid message format")
}

func ErrRoomNotFound(id int) *ServerMessage {
	return errResponse(id, http.StatusNotFound, "room not found")
}

func ErrNotPermitted(id int) *ServerMessage {
	return errResponse(id, http.StatusForbidden, "not permitted")
}

func ErrPaymentRequired(id int) *ServerMessage {
	return errResponse(id, http.StatusPaymentRequired, "insufficient funds")
}

func ErrNotInRoom(id int) *ServerMessage {
	return errResponse(id, http.StatusConflict, "not in a room")
}

func ErrInternalError(id int) *ServerMessage {
	return errResponse(id, http.StatusInternalServerError, "internal server error")
}
