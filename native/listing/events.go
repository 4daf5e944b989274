package listing

import (
	"encoding/hex"
	"strconv"

	"escrowswap/core/types"
)

const (
	EventTypePlatformInitialized  = "platform.initialized"
	EventTypePlatformUpdated      = "platform.updated"
	EventTypePlatformPaused       = "platform.paused"
	EventTypePlatformResumed      = "platform.resumed"
	EventTypePlatformFeeCollector = "platform.fee_collector"
	EventTypeWhitelistUpdated     = "whitelist.updated"
	EventTypeProfileCreated       = "profile.created"
	EventTypeProfileUpdated       = "profile.updated"
	EventTypeListingCreated       = "listing.created"
	EventTypeListingUpdated       = "listing.updated"
	EventTypeListingFilled        = "listing.filled"
	EventTypeListingCompleted     = "listing.completed"
	EventTypeListingCancelled     = "listing.cancelled"
	EventTypeListingExpired       = "listing.expired"
)

func hexAddr(addr [20]byte) string { return "0x" + hex.EncodeToString(addr[:]) }

// HexKey renders a listing key the way events and the RPC surface print it.
func HexKey(key [32]byte) string { return "0x" + hex.EncodeToString(key[:]) }

func u64(v uint64) string { return strconv.FormatUint(v, 10) }

func newPlatformEvent(eventType string, cfg *PlatformConfig) *types.Event {
	attrs := make(map[string]string)
	if cfg != nil {
		attrs["authority"] = hexAddr(cfg.Authority)
		attrs["feeCollector"] = hexAddr(cfg.FeeCollector)
		attrs["feeBasisPoints"] = u64(uint64(cfg.FeeBasisPoints))
		attrs["minListingDuration"] = strconv.FormatInt(cfg.MinListingDuration, 10)
		attrs["maxListingDuration"] = strconv.FormatInt(cfg.MaxListingDuration, 10)
		attrs["minTradeAmount"] = u64(cfg.MinTradeAmount)
		attrs["maxListingsPerUser"] = u64(uint64(cfg.MaxListingsPerUser))
		attrs["paused"] = strconv.FormatBool(cfg.Paused)
		attrs["whitelistEnabled"] = strconv.FormatBool(cfg.WhitelistEnabled)
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}

func newWhitelistEvent(entry *WhitelistEntry) *types.Event {
	return &types.Event{Type: EventTypeWhitelistUpdated, Attributes: map[string]string{
		"asset":         hexAddr(entry.Asset),
		"isWhitelisted": strconv.FormatBool(entry.IsWhitelisted),
	}}
}

func newProfileEvent(eventType string, profile *UserProfile) *types.Event {
	attrs := map[string]string{
		"owner":                  hexAddr(profile.Owner),
		"defaultListingDuration": strconv.FormatInt(profile.DefaultListingDuration, 10),
		"defaultSlippageBps":     u64(uint64(profile.DefaultSlippageBps)),
	}
	if profile.HasReferrer() {
		attrs["referrer"] = hexAddr(profile.Referrer)
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}

func newListingEvent(eventType string, l *Listing) *types.Event {
	attrs := make(map[string]string)
	if l == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["listing"] = HexKey(l.Key)
	attrs["id"] = u64(l.ID)
	attrs["maker"] = hexAddr(l.Maker)
	attrs["sourceAsset"] = hexAddr(l.SourceAsset)
	attrs["destAsset"] = hexAddr(l.DestAsset)
	attrs["amountSourceTotal"] = u64(l.AmountSourceTotal)
	attrs["amountSourceRemaining"] = u64(l.AmountSourceRemaining)
	attrs["amountDestinationTotal"] = u64(l.AmountDestinationTotal)
	attrs["amountDestinationRemaining"] = u64(l.AmountDestinationRemaining)
	attrs["minFillAmount"] = u64(l.MinFillAmount)
	attrs["maxSlippageBps"] = u64(uint64(l.MaxSlippageBps))
	attrs["expiresAt"] = strconv.FormatInt(l.ExpiresAt, 10)
	attrs["createdAt"] = strconv.FormatInt(l.CreatedAt, 10)
	attrs["status"] = l.Status.String()
	attrs["fillCount"] = u64(l.FillCount)
	return &types.Event{Type: eventType, Attributes: attrs}
}

func newFilledEvent(l *Listing, taker [20]byte, quote *Quote) *types.Event {
	evt := newListingEvent(EventTypeListingFilled, l)
	evt.Attributes["taker"] = hexAddr(taker)
	evt.Attributes["fillAmountSource"] = u64(quote.FillAmountSource)
	evt.Attributes["fillAmountDestination"] = u64(quote.FillAmountDestination)
	evt.Attributes["fee"] = u64(quote.Fee)
	evt.Attributes["makerReceives"] = u64(quote.MakerReceives)
	return evt
}

func newRefundEvent(eventType string, l *Listing, refunded uint64, caller [20]byte) *types.Event {
	evt := newListingEvent(eventType, l)
	evt.Attributes["refunded"] = u64(refunded)
	evt.Attributes["caller"] = hexAddr(caller)
	return evt
}
