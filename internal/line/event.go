package line

import (
	"net/url"

	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"
)

const actionChoose = "choose"

// ChoosePostbackData encodes the postback payload that confirms venueID.
func ChoosePostbackData(venueID string) string {
	return url.Values{"action": {actionChoose}, "venue": {venueID}}.Encode()
}

// chosenVenue returns the venue ID carried by a choice postback.
func chosenVenue(data string) (string, bool) {
	values, err := url.ParseQuery(data)
	if err != nil || values.Get("action") != actionChoose {
		return "", false
	}
	venue := values.Get("venue")
	return venue, venue != ""
}

// senderID returns the user behind an event source. Group and room events
// still carry the speaking user's ID.
func senderID(source webhook.SourceInterface) string {
	switch s := source.(type) {
	case webhook.UserSource:
		return s.UserId
	case webhook.GroupSource:
		return s.UserId
	case webhook.RoomSource:
		return s.UserId
	default:
		return ""
	}
}

// inbound is a webhook event reduced to what the bot core consumes.
type inbound struct {
	kind       string
	userID     string
	replyToken string
	text       string
	venueID    string
}

const (
	inboundText   = "text"
	inboundChoice = "choice"
)

// classify maps a decoded event onto an inbound turn. Events the bot does not
// answer report false.
func classify(event webhook.EventInterface) (inbound, bool) {
	switch e := event.(type) {
	case webhook.MessageEvent:
		msg, ok := e.Message.(webhook.TextMessageContent)
		if !ok {
			return inbound{}, false
		}
		return inbound{kind: inboundText, userID: senderID(e.Source), replyToken: e.ReplyToken, text: msg.Text}, true
	case webhook.PostbackEvent:
		if e.Postback == nil {
			return inbound{}, false
		}
		venue, ok := chosenVenue(e.Postback.Data)
		if !ok {
			return inbound{}, false
		}
		return inbound{kind: inboundChoice, userID: senderID(e.Source), replyToken: e.ReplyToken, venueID: venue}, true
	default:
		return inbound{}, false
	}
}
