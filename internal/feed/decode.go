package feed

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/yanguangshaonian/axob/internal/axob"
)

var validate = validator.New()

// DecodedMessage is the outcome of decoding one Record: exactly one of
// Order/Exec/Cancel/Snap is set, the others zero.
type DecodedMessage struct {
	Order *axob.AddOrderMsg
	Exec  *axob.ExecutionMsg
	Cancel *axob.CancelMsg
	Snap  *axob.Snapshot
}

func sourceFromWire(v uint8) axob.SecurityIDSource {
	switch v {
	case 1:
		return axob.SourceSZSE
	case 2:
		return axob.SourceSSE
	default:
		return axob.SourceUnknown
	}
}

func phaseFromWire(v uint8) axob.TradingPhaseMarket {
	if v > uint8(axob.PhaseEnding) {
		return axob.PhaseStarting
	}
	return axob.TradingPhaseMarket(v)
}

// DecodeOrder converts a validated OrderRecord into either an add-order
// or cancel message, applying the SZ/SH side and type code mappings
// from axsbe_order.
func DecodeOrder(r *OrderRecord) (DecodedMessage, error) {
	if err := validate.Struct(r); err != nil {
		return DecodedMessage{}, fmt.Errorf("invalid order record: %w", err)
	}
	source := sourceFromWire(r.SecurityIDSource)
	phase := phaseFromWire(r.TradingPhaseMarket)

	switch source {
	case axob.SourceSZSE:
		side, err := szSide(r.Side)
		if err != nil {
			return DecodedMessage{}, err
		}
		otype, err := szOrdType(r.OrdType)
		if err != nil {
			return DecodedMessage{}, err
		}
		return DecodedMessage{Order: &axob.AddOrderMsg{
			SeqNum: r.ApplSeqNum, Side: side, Type: otype,
			Price: r.Price, Qty: r.OrderQty, TransactTime: r.TransactTime, Phase: phase,
		}}, nil

	case axob.SourceSSE:
		if r.OrdType == 'D' {
			return DecodedMessage{Cancel: &axob.CancelMsg{
				SeqNum: r.ApplSeqNum, TransactTime: r.TransactTime, Phase: phase,
			}}, nil
		}
		side, err := shSide(r.Side)
		if err != nil {
			return DecodedMessage{}, err
		}
		return DecodedMessage{Order: &axob.AddOrderMsg{
			SeqNum: r.ApplSeqNum, Side: side, Type: axob.OrderTypeLimit,
			Price: r.Price, Qty: r.OrderQty, TransactTime: r.TransactTime, Phase: phase,
		}}, nil

	default:
		return DecodedMessage{}, fmt.Errorf("unknown security id source %d", r.SecurityIDSource)
	}
}

// DecodeExec converts a validated ExecRecord into an execution message.
// An SZ ExecType='4' record is returned as an Exec with ExecSZCancel;
// the engine's OnExecution turns it into a cancel.
func DecodeExec(r *ExecRecord) (DecodedMessage, error) {
	if err := validate.Struct(r); err != nil {
		return DecodedMessage{}, fmt.Errorf("invalid exec record: %w", err)
	}
	phase := phaseFromWire(r.TradingPhaseMarket)

	var execType axob.ExecType
	switch r.ExecType {
	case 'F':
		execType = axob.ExecTrade
	case '4':
		execType = axob.ExecSZCancel
	case 'B':
		execType = axob.ExecSHBuyInner
	case 'S':
		execType = axob.ExecSHSellInner
	case 'N':
		execType = axob.ExecSHOuter
	default:
		return DecodedMessage{}, fmt.Errorf("unknown exec type %q", r.ExecType)
	}

	msg := &axob.ExecutionMsg{
		BidSeqNum: r.BidApplSeqNum, OfferSeqNum: r.OfferApplSeqNum,
		LastPx: r.LastPx, LastQty: r.LastQty, ExecType: execType,
		TransactTime: r.TransactTime, Phase: phase,
	}
	return DecodedMessage{Exec: msg}, nil
}

// DecodeSnap converts a validated SnapRecord into an axob.Snapshot, the
// exchange-published reference the Snapshot Matcher compares against.
func DecodeSnap(r *SnapRecord) (DecodedMessage, error) {
	if err := validate.Struct(r); err != nil {
		return DecodedMessage{}, fmt.Errorf("invalid snap record: %w", err)
	}
	s := axob.Snapshot{
		SecurityID:       r.SecurityID,
		SecurityIDSource: sourceFromWire(r.SecurityIDSource),
		TransactTime:     r.TransactTime,
		Phase:            phaseFromWire(r.TradingPhaseMarket),
		PrevClosePx:      r.PrevClosePx,
		UpLimitPx:        r.UpLimitPx,
		DnLimitPx:        r.DnLimitPx,
		ChannelNo:        r.ChannelNo,
		NumTrades:        r.NumTrades,
		TotalVolumeTrade: r.TotalVolumeTrade,
		TotalValueTrade:  r.TotalValueTrade,
		LastPx:           r.LastPx,
		OpenPx:           r.OpenPx,
		HighPx:           r.HighPx,
		LowPx:            r.LowPx,
		BidWeightPx:      r.BidWeightPx,
		AskWeightPx:      r.AskWeightPx,
	}
	for i := 0; i < 10; i++ {
		s.BidLevels[i] = axob.PriceLevel{Price: r.BidLevels[i].Price, Qty: r.BidLevels[i].Qty}
		s.AskLevels[i] = axob.PriceLevel{Price: r.AskLevels[i].Price, Qty: r.AskLevels[i].Qty}
	}
	return DecodedMessage{Snap: &s}, nil
}

func szSide(b byte) (axob.Side, error) {
	switch b {
	case '1':
		return axob.SideBid, nil
	case '2':
		return axob.SideAsk, nil
	default:
		return axob.SideUnknown, fmt.Errorf("unsupported SZ side %q", b)
	}
}

func szOrdType(b byte) (axob.OrderType, error) {
	switch b {
	case '1':
		return axob.OrderTypeMarket, nil
	case '2':
		return axob.OrderTypeLimit, nil
	case 'U':
		return axob.OrderTypeSideOptimal, nil
	default:
		return axob.OrderTypeUnknown, fmt.Errorf("unsupported SZ order type %q", b)
	}
}

func shSide(b byte) (axob.Side, error) {
	switch b {
	case 'B':
		return axob.SideBid, nil
	case 'S':
		return axob.SideAsk, nil
	default:
		return axob.SideUnknown, fmt.Errorf("unsupported SH side %q", b)
	}
}
