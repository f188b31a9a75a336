package qubic

import "github.com/shopspring/decimal"

// Balance is the account state returned by /v1/balances/{id}.
type Balance struct {
	ID                         string          `json:"id"`
	Balance                    decimal.Decimal `json:"balance"`
	ValidForTick               int64           `json:"validForTick"`
	LatestIncomingTransferTick int64           `json:"latestIncomingTransferTick"`
	LatestOutgoingTransferTick int64           `json:"latestOutgoingTransferTick"`
	IncomingAmount             decimal.Decimal `json:"incomingAmount"`
	OutgoingAmount             decimal.Decimal `json:"outgoingAmount"`
	NumberOfIncomingTransfers  int64           `json:"numberOfIncomingTransfers"`
	NumberOfOutgoingTransfers  int64           `json:"numberOfOutgoingTransfers"`
}

// Asset is one asset record owned, possessed or issued by an address.
type Asset struct {
	Name          string          `json:"name"`
	Issuer        string          `json:"issuer,omitempty"`
	Units         decimal.Decimal `json:"units"`
	DecimalPlaces int             `json:"decimalPlaces,omitempty"`
	Tick          int64           `json:"tick,omitempty"`
}

// Wire shapes. Amounts arrive as strings or numbers; decimal accepts both.

type balanceResponse struct {
	Balance Balance `json:"balance"`
}

type latestTickResponse struct {
	LatestTick int64 `json:"latestTick"`
}

type issuedAssetWire struct {
	IssuerIdentity        string          `json:"issuerIdentity"`
	Name                  string          `json:"name"`
	NumberOfDecimalPlaces int             `json:"numberOfDecimalPlaces"`
	NumberOfUnits         decimal.Decimal `json:"numberOfUnits"`
}

type assetInfoWire struct {
	Tick          int64 `json:"tick"`
	UniverseIndex int64 `json:"universeIndex"`
}

type ownedAssetWire struct {
	Data struct {
		OwnerIdentity string          `json:"ownerIdentity"`
		NumberOfUnits decimal.Decimal `json:"numberOfUnits"`
		IssuedAsset   issuedAssetWire `json:"issuedAsset"`
	} `json:"data"`
	Info assetInfoWire `json:"info"`
}

type possessedAssetWire struct {
	Data struct {
		PossessorIdentity string          `json:"possessorIdentity"`
		NumberOfUnits     decimal.Decimal `json:"numberOfUnits"`
		OwnedAsset        struct {
			IssuedAsset issuedAssetWire `json:"issuedAsset"`
		} `json:"ownedAsset"`
		PossessedAsset issuedAssetWire `json:"possessedAsset"`
	} `json:"data"`
	Info assetInfoWire `json:"info"`
}

type issuedAssetRecordWire struct {
	Data struct {
		IssuedAsset issuedAssetWire `json:"issuedAsset"`
	} `json:"data"`
	Info assetInfoWire `json:"info"`
}

type ownedAssetsResponse struct {
	OwnedAssets []ownedAssetWire `json:"ownedAssets"`
}

type possessedAssetsResponse struct {
	PossessedAssets []possessedAssetWire `json:"possessedAssets"`
}

type issuedAssetsResponse struct {
	IssuedAssets []issuedAssetRecordWire `json:"issuedAssets"`
}

func (w ownedAssetWire) toAsset() Asset {
	return Asset{
		Name:          w.Data.IssuedAsset.Name,
		Issuer:        w.Data.IssuedAsset.IssuerIdentity,
		Units:         w.Data.NumberOfUnits,
		DecimalPlaces: w.Data.IssuedAsset.NumberOfDecimalPlaces,
		Tick:          w.Info.Tick,
	}
}

func (w possessedAssetWire) toAsset() Asset {
	issued := w.Data.OwnedAsset.IssuedAsset
	if issued.Name == "" {
		issued = w.Data.PossessedAsset
	}
	return Asset{
		Name:          issued.Name,
		Issuer:        issued.IssuerIdentity,
		Units:         w.Data.NumberOfUnits,
		DecimalPlaces: issued.NumberOfDecimalPlaces,
		Tick:          w.Info.Tick,
	}
}

func (w issuedAssetRecordWire) toAsset() Asset {
	a := w.Data.IssuedAsset
	return Asset{
		Name:          a.Name,
		Issuer:        a.IssuerIdentity,
		Units:         a.NumberOfUnits,
		DecimalPlaces: a.NumberOfDecimalPlaces,
		Tick:          w.Info.Tick,
	}
}
