package line

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ashureev/lunch-picker/internal/conversation"
	"github.com/ashureev/lunch-picker/internal/domain"
	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
)

// Messaging API limits.
const (
	maxQuickReplyItems = 13
	maxLabelRunes      = 20
	maxTextRunes       = 5000
)

// VenueCard is the display record for one recommended venue.
type VenueCard struct {
	ID        string
	Name      string
	Rating    *float64
	Address   string
	Lat, Lng  float64
	OpenState domain.OpenState
	Hours     string
	Photo     string
}

// CardFromVenue extracts the display fields of v.
func CardFromVenue(v domain.Venue) VenueCard {
	card := VenueCard{
		ID:        v.ID,
		Name:      v.Name,
		Rating:    v.Rating,
		Address:   v.Address,
		Lat:       v.Lat,
		Lng:       v.Lng,
		OpenState: v.OpenNow,
	}
	if v.HoursText != nil {
		card.Hours = *v.HoursText
	}
	if v.PhotoRef != nil {
		card.Photo = *v.PhotoRef
	}
	return card
}

// MapURL links to the venue on Google Maps.
func (c VenueCard) MapURL() string {
	return fmt.Sprintf("https://www.google.com/maps/search/?api=1&query=%f,%f&query_place_id=%s", c.Lat, c.Lng, c.ID)
}

// Text renders the card as a message block.
func (c VenueCard) Text() string {
	rating := "N/A"
	if c.Rating != nil {
		rating = strconv.FormatFloat(*c.Rating, 'f', -1, 64)
	}

	lines := []string{c.Name + " (" + rating + "⭐)", c.Address}
	status := openLabel(c.OpenState)
	if c.Hours != "" {
		if status != "" {
			status += " · "
		}
		status += c.Hours
	}
	if status != "" {
		lines = append(lines, status)
	}
	lines = append(lines, c.MapURL())
	return strings.Join(lines, "\n")
}

func openLabel(s domain.OpenState) string {
	switch s {
	case domain.OpenNow:
		return "營業中"
	case domain.Closed:
		return "休息中"
	default:
		return ""
	}
}

// Render converts a core reply into the single LINE message to send.
// Recommendations get one "choose" postback button per venue.
func Render(reply conversation.Reply) messaging_api.TextMessage {
	msg := messaging_api.TextMessage{Text: reply.Text}

	var items []messaging_api.QuickReplyItem
	for _, q := range reply.QuickReplies {
		items = append(items, messaging_api.QuickReplyItem{
			Type:   "action",
			Action: &messaging_api.MessageAction{Label: truncate(q.Label, maxLabelRunes), Text: q.Text},
		})
	}

	if reply.Kind == conversation.ReplyRecommendation && len(reply.Venues) > 0 {
		blocks := make([]string, 0, len(reply.Venues))
		for _, v := range reply.Venues {
			card := CardFromVenue(v)
			blocks = append(blocks, card.Text())
			items = append(items, messaging_api.QuickReplyItem{
				Type: "action",
				Action: &messaging_api.PostbackAction{
					Label:       truncate("選擇 "+card.Name, maxLabelRunes),
					Data:        ChoosePostbackData(card.ID),
					DisplayText: "就吃" + card.Name,
				},
			})
		}
		msg.Text = strings.Join(blocks, "\n\n")
	}

	msg.Text = truncate(msg.Text, maxTextRunes)
	if len(items) > maxQuickReplyItems {
		items = items[:maxQuickReplyItems]
	}
	if len(items) > 0 {
		msg.QuickReply = &messaging_api.QuickReply{Items: items}
	}
	return msg
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
