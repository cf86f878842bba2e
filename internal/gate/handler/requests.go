package handler

import (
	"tokengate/internal/gate/models"
	"tokengate/pkg/domain"
	dErrors "tokengate/pkg/domain-errors"
)

// requirementsRequest is the wire form of admission requirements. Empty
// addresses mean the clause is not enforced.
type requirementsRequest struct {
	TokenAddress string `json:"token_address,omitempty"`
	MinBalance   uint64 `json:"min_balance,omitempty"`
	NFTAddress   string `json:"nft_address,omitempty"`
	NFTTokenID   uint64 `json:"nft_token_id,omitempty"`
}

func (r requirementsRequest) toModel() (models.Requirements, error) {
	var reqs models.Requirements
	if r.TokenAddress != "" {
		addr, err := domain.ParseAddress(r.TokenAddress)
		if err != nil {
			return reqs, dErrors.New(dErrors.CodeValidation, "invalid token address")
		}
		reqs.Token = models.TokenRequirement{TokenAddress: addr, MinBalance: r.MinBalance}
	}
	if r.NFTAddress != "" {
		addr, err := domain.ParseAddress(r.NFTAddress)
		if err != nil {
			return reqs, dErrors.New(dErrors.CodeValidation, "invalid nft address")
		}
		reqs.NFT = models.NFTRequirement{NFTAddress: addr, TokenID: r.NFTTokenID}
	}
	return reqs, nil
}

type createCommunityRequest struct {
	Name         string              `json:"name"`
	Description  string              `json:"description"`
	Requirements requirementsRequest `json:"requirements"`
	Fee          uint64              `json:"fee"`
}

type createChannelRequest struct {
	CommunityID  uint64              `json:"community_id"`
	Name         string              `json:"name"`
	Description  string              `json:"description"`
	Requirements requirementsRequest `json:"requirements"`
}

type joinCommunityRequest struct {
	Fee uint64 `json:"fee"`
}

type kickUserRequest struct {
	User string `json:"user"`
}

type updateRequirementsRequest struct {
	Requirements requirementsRequest `json:"requirements"`
}

type withdrawResponse struct {
	Amount uint64 `json:"amount"`
}

type feeBalanceResponse struct {
	Balance uint64 `json:"balance"`
}

type membershipsResponse struct {
	CommunityIDs []domain.CommunityID `json:"community_ids"`
}
