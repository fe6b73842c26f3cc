package codec

import (
	"errors"

	"github.com/google/uuid"

	"github.com/arklim/identity-server/internal/command"
	"github.com/arklim/identity-server/internal/command/handlers"
	"github.com/arklim/identity-server/internal/core/domain"
)

// Envelope is a decoded request frame. Payload is still encoded in the frame's format.
type Envelope struct {
	Type          string
	RequestID     string
	CorrelationID string
	Payload       []byte
}

// Reply is the wire form of a command response.
type Reply struct {
	RequestID     string             `json:"request_id" cbor:"request_id"`
	CorrelationID string             `json:"correlation_id,omitempty" cbor:"correlation_id,omitempty"`
	Body          any                `json:"body,omitempty" cbor:"body,omitempty"`
	Error         *command.ErrorBody `json:"error,omitempty" cbor:"error,omitempty"`
}

// ErrEmptyType is returned for an envelope without a command type.
var ErrEmptyType = errors.New("codec: envelope has no type")

// Decode parses a full request frame into a pipeline request. Every failure is a
// PROTOCOL_ERROR failure; the request id is kept when it could be read.
func Decode(f Format, data []byte) (command.Request, error) {
	env, err := f.DecodeEnvelope(data)
	if err != nil {
		return command.Request{}, domain.Fail(domain.ErrProtocol, "malformed envelope").WithCause(err)
	}
	return DecodeEnvelope(f, env)
}

// DecodeEnvelope resolves env's type and payload into a pipeline request.
func DecodeEnvelope(f Format, env Envelope) (command.Request, error) {
	var req command.Request
	if env.RequestID != "" {
		id, err := uuid.Parse(env.RequestID)
		if err != nil {
			return req, domain.Failf(domain.ErrProtocol, "request_id %q is not a uuid", env.RequestID)
		}
		req.RequestID = id
	}
	req.CorrelationID = env.CorrelationID

	if env.Type == "" {
		return req, domain.Fail(domain.ErrProtocol, "missing command type").WithCause(ErrEmptyType)
	}
	cmd, err := decodeCommand(f, command.Tag(env.Type), env.Payload)
	if err != nil {
		return req, err
	}
	req.Command = cmd
	return req, nil
}

// EncodeReply renders resp in f.
func EncodeReply(f Format, resp command.Response) ([]byte, error) {
	return f.Marshal(NewReply(resp))
}

// NewReply converts a pipeline response to its wire form.
func NewReply(resp command.Response) Reply {
	r := Reply{CorrelationID: resp.CorrelationID, Error: resp.Error}
	if resp.RequestID != uuid.Nil {
		r.RequestID = resp.RequestID.String()
	}
	if !resp.IsError() {
		r.Body = resp.Body
	}
	return r
}

// RejectReply renders a failure raised before the pipeline ran.
func RejectReply(requestID uuid.UUID, correlationID string, err error) Reply {
	failure := command.Classify(err)
	resp := command.Reject(failure.Code, failure.Message)
	resp.RequestID = requestID
	resp.CorrelationID = correlationID
	return NewReply(resp)
}

func payload[T command.Command](f Format, data []byte) (command.Command, error) {
	var cmd T
	if len(data) > 0 {
		if err := f.Unmarshal(data, &cmd); err != nil {
			return nil, domain.Failf(domain.ErrProtocol, "malformed %s payload", cmd.Tag()).WithCause(err)
		}
	}
	return cmd, nil
}

// decodeCommand is the closed set of commands the server accepts.
func decodeCommand(f Format, tag command.Tag, data []byte) (command.Command, error) {
	switch tag {
	case handlers.TagUserLogin:
		return payload[handlers.UserLogin](f, data)
	case handlers.TagAdminLogin:
		return payload[handlers.AdminLogin](f, data)
	case handlers.TagPasswordResetBegin:
		return payload[handlers.PasswordResetBegin](f, data)
	case handlers.TagPasswordResetConfirm:
		return payload[handlers.PasswordResetConfirm](f, data)
	case handlers.TagEmailPermit:
		return payload[handlers.EmailPermit](f, data)
	case handlers.TagEmailDeny:
		return payload[handlers.EmailDeny](f, data)

	case handlers.TagUserSelf:
		return payload[handlers.UserSelf](f, data)
	case handlers.TagUserEmailAddBegin:
		return payload[handlers.UserEmailAddBegin](f, data)
	case handlers.TagUserEmailRemoveBegin:
		return payload[handlers.UserEmailRemoveBegin](f, data)
	case handlers.TagUserRealNameUpdate:
		return payload[handlers.UserRealNameUpdate](f, data)
	case handlers.TagUserPasswordUpdate:
		return payload[handlers.UserPasswordUpdate](f, data)
	case handlers.TagUserLoginHistory:
		return payload[handlers.UserLoginHistory](f, data)

	case handlers.TagAdminSelf:
		return payload[handlers.AdminSelf](f, data)
	case handlers.TagAdminCreate:
		return payload[handlers.AdminCreate](f, data)
	case handlers.TagAdminGet:
		return payload[handlers.AdminGet](f, data)
	case handlers.TagAdminDelete:
		return payload[handlers.AdminDelete](f, data)
	case handlers.TagAdminPermissionGrant:
		return payload[handlers.AdminPermissionGrant](f, data)
	case handlers.TagAdminPermissionRevoke:
		return payload[handlers.AdminPermissionRevoke](f, data)
	case handlers.TagAdminEmailAdd:
		return payload[handlers.AdminEmailAdd](f, data)
	case handlers.TagAdminEmailRemove:
		return payload[handlers.AdminEmailRemove](f, data)
	case handlers.TagAdminPasswordUpdate:
		return payload[handlers.AdminPasswordUpdate](f, data)
	case handlers.TagAdminBanCreate:
		return payload[handlers.AdminBanCreate](f, data)
	case handlers.TagAdminBanGet:
		return payload[handlers.AdminBanGet](f, data)
	case handlers.TagAdminBanDelete:
		return payload[handlers.AdminBanDelete](f, data)
	case handlers.TagAdminSearchBegin:
		return payload[handlers.AdminSearchBegin](f, data)
	case handlers.TagAdminSearchNext:
		return payload[handlers.AdminSearchNext](f, data)
	case handlers.TagAdminSearchPrevious:
		return payload[handlers.AdminSearchPrevious](f, data)

	case handlers.TagUserCreate:
		return payload[handlers.UserCreate](f, data)
	case handlers.TagUserGet:
		return payload[handlers.UserGet](f, data)
	case handlers.TagUserDelete:
		return payload[handlers.UserDelete](f, data)
	case handlers.TagUserUpdate:
		return payload[handlers.UserUpdate](f, data)
	case handlers.TagUserEmailAdd:
		return payload[handlers.UserEmailAdd](f, data)
	case handlers.TagUserEmailRemove:
		return payload[handlers.UserEmailRemove](f, data)
	case handlers.TagUserBanCreate:
		return payload[handlers.UserBanCreate](f, data)
	case handlers.TagUserBanGet:
		return payload[handlers.UserBanGet](f, data)
	case handlers.TagUserBanDelete:
		return payload[handlers.UserBanDelete](f, data)
	case handlers.TagUserSearchBegin:
		return payload[handlers.UserSearchBegin](f, data)
	case handlers.TagUserSearchNext:
		return payload[handlers.UserSearchNext](f, data)
	case handlers.TagUserSearchPrevious:
		return payload[handlers.UserSearchPrevious](f, data)
	case handlers.TagUserLoginHistoryGet:
		return payload[handlers.UserLoginHistoryGet](f, data)

	case handlers.TagAuditSearchBegin:
		return payload[handlers.AuditSearchBegin](f, data)
	case handlers.TagAuditSearchNext:
		return payload[handlers.AuditSearchNext](f, data)
	case handlers.TagAuditSearchPrevious:
		return payload[handlers.AuditSearchPrevious](f, data)
	default:
		return nil, domain.Failf(domain.ErrProtocol, "unknown command type %q", tag)
	}
}

// Encode builds a request frame for cmd. Clients use it to talk to the server.
func Encode(f Format, requestID uuid.UUID, correlationID string, cmd command.Command) ([]byte, error) {
	body, err := f.Marshal(cmd)
	if err != nil {
		return nil, err
	}
	env := Envelope{Type: string(cmd.Tag()), CorrelationID: correlationID, Payload: body}
	if requestID != uuid.Nil {
		env.RequestID = requestID.String()
	}
	return f.EncodeEnvelope(env)
}
