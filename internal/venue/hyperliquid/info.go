package hyperliquid

import (
	"context"
	"strconv"
	"time"

	"execgw/internal/adapter"
	"execgw/internal/adapter/enum"
	"execgw/pkg/exception"

	"github.com/yanun0323/errors"
)

const spotAssetOffset = 10000

// InfoPoster posts a request to the info endpoint and decodes the reply into out.
type InfoPoster interface {
	Info(ctx context.Context, req any, out any) error
}

// Info runs the read-only venue queries.
type Info struct {
	poster InfoPoster
	user   string
}

// NewInfo builds the query client for the account user.
func NewInfo(poster InfoPoster, user string) *Info {
	return &Info{poster: poster, user: user}
}

type metaRequest struct {
	Type string `json:"type"`
}

type perpMeta struct {
	Universe []struct {
		Name       string `json:"name"`
		SzDecimals int    `json:"szDecimals"`
		IsDelisted bool   `json:"isDelisted"`
	} `json:"universe"`
}

type spotMeta struct {
	Universe []struct {
		Name   string `json:"name"`
		Tokens []int  `json:"tokens"`
		Index  int    `json:"index"`
	} `json:"universe"`
	Tokens []struct {
		Name       string `json:"name"`
		SzDecimals int    `json:"szDecimals"`
		Index      int    `json:"index"`
	} `json:"tokens"`
}

// Fetch loads every perp and spot asset. Perp ids are universe positions,
// spot ids are 10000 plus the pair index. Spot pairs are named BASE/QUOTE.
func (i *Info) Fetch(ctx context.Context) ([]adapter.Asset, error) {
	var perps perpMeta
	if err := i.poster.Info(ctx, metaRequest{Type: "meta"}, &perps); err != nil {
		return nil, errors.Wrap(err, "query perp meta")
	}
	var spots spotMeta
	if err := i.poster.Info(ctx, metaRequest{Type: "spotMeta"}, &spots); err != nil {
		return nil, errors.Wrap(err, "query spot meta")
	}

	assets := make([]adapter.Asset, 0, len(perps.Universe)+len(spots.Universe))
	for idx, u := range perps.Universe {
		if u.IsDelisted {
			continue
		}
		assets = append(assets, adapter.Asset{Name: u.Name, AssetID: idx, SizeDecimals: u.SzDecimals})
	}

	tokens := make(map[int]int, len(spots.Tokens))
	for pos, t := range spots.Tokens {
		tokens[t.Index] = pos
	}
	for _, u := range spots.Universe {
		if len(u.Tokens) != 2 {
			continue
		}
		base, okBase := tokens[u.Tokens[0]]
		quote, okQuote := tokens[u.Tokens[1]]
		if !okBase || !okQuote {
			continue
		}
		assets = append(assets, adapter.Asset{
			Name:         spots.Tokens[base].Name + "/" + spots.Tokens[quote].Name,
			AssetID:      spotAssetOffset + u.Index,
			SizeDecimals: spots.Tokens[base].SzDecimals,
			Spot:         true,
		})
	}
	return assets, nil
}

type orderStatusRequest struct {
	Type string `json:"type"`
	User string `json:"user"`
	Oid  string `json:"oid"`
}

type orderStatusResponse struct {
	Status string   `json:"status"`
	Order  *wsOrder `json:"order"`
}

// OrderStatus queries one order by client order id. It returns
// exception.ErrOrderStatusUnknown when the venue does not know the order.
func (i *Info) OrderStatus(ctx context.Context, clientOrderID string) (adapter.OrderUpdate, error) {
	var resp orderStatusResponse
	if err := i.poster.Info(ctx, orderStatusRequest{Type: "orderStatus", User: i.user, Oid: clientOrderID}, &resp); err != nil {
		return adapter.OrderUpdate{}, err
	}
	if resp.Status != "order" || resp.Order == nil {
		return adapter.OrderUpdate{}, exception.ErrOrderStatusUnknown
	}
	state, ok := MapStatus(resp.Order.Status)
	if !ok {
		return adapter.OrderUpdate{}, errors.Wrap(exception.ErrOrderDecodeResponseBody, "unmapped order status").With("status", resp.Order.Status)
	}
	u := adapter.OrderUpdate{
		ClientOrderID: clientOrderID,
		VenueOrderID:  strconv.FormatUint(resp.Order.Order.Oid, 10),
		State:         state,
		Timestamp:     time.UnixMilli(resp.Order.StatusTimestamp),
	}
	if state.IsTerminal() && state != enum.OrderStateFilled {
		u.Reason = resp.Order.Status
	}
	return u, nil
}
