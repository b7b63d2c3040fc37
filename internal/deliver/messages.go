package deliver

import (
	"errors"

	"github.com/harrylevesque/invitedeliver/internal/invite"
	"github.com/harrylevesque/invitedeliver/internal/status"
)

// Status lines shared by the controller and the HTTP handlers.
const (
	MsgScanned      = "QR scanned, ready to deliver."
	MsgNoCode       = "No QR found in photo. Try again."
	MsgBadImage     = "Failed to load image."
	MsgPhotoFailed  = "Photo scan failed."
	MsgLiveFailed   = "Live scan failed. Use Photo Scan instead."
	MsgInviteLoaded = "Loaded invite from URL fragment/query."
	MsgNoInvite     = "No invite in that link."
	MsgDelivered    = "Invite delivered to device."
)

// ComposeStatus turns a ComposeDeliveryURL failure into the status shown to the user.
func ComposeStatus(err error) status.Status {
	switch {
	case err == nil:
		return status.Status{Message: "Ready to deliver.", Severity: status.OK}
	case errors.Is(err, invite.ErrMissingDeviceURL):
		return status.Status{Message: "Missing device URL. Scan QR or paste it.", Severity: status.Warn}
	case errors.Is(err, invite.ErrMissingToken):
		return status.Status{Message: "Missing invite. Paste ek=... or include #ek= in this page URL.", Severity: status.Warn}
	}
	reason := err.Error()
	if cause := errors.Unwrap(err); cause != nil {
		reason = cause.Error()
	}
	return status.Status{Message: "Invalid device URL: " + reason, Severity: status.SeverityFor(err)}
}
