package invite

import (
	"context"
	"fmt"

	"github.com/skip2/go-qrcode"

	"ms-orders/internal/models"
)

// ClaimQR renders the invite's claim URL as a QR PNG for distribution to the
// invitee. Only a still-PENDING invite gets a code.
func (s *Service) ClaimQR(ctx context.Context, eventID, code string) ([]byte, error) {
	inv, err := s.DB.InviteByCode(ctx, nil, eventID, code, false)
	if err != nil {
		return nil, err
	}
	if inv.Status != models.InvitePending {
		return nil, fmt.Errorf("%w: invite %s is %s", ErrAlreadyRedeemed, inv.ID, inv.Status)
	}

	claimURL := fmt.Sprintf("%s/%s/%s", s.ClaimBaseURL, eventID, code)
	return qrcode.Encode(claimURL, qrcode.Medium, 256)
}
