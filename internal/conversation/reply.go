package conversation

import (
	"strconv"
	"strings"

	"github.com/ashureev/lunch-picker/internal/domain"
)

// ReplyKind classifies an outbound reply.
type ReplyKind int

const (
	ReplyHelp ReplyKind = iota
	ReplyPrompt
	ReplyRecommendation
	ReplyChoice
	ReplyError
)

// String returns the kind name.
func (k ReplyKind) String() string {
	switch k {
	case ReplyPrompt:
		return "prompt"
	case ReplyRecommendation:
		return "recommendation"
	case ReplyChoice:
		return "choice"
	case ReplyError:
		return "error"
	default:
		return "help"
	}
}

// QuickReply is a tappable option whose Text is sent back as a message.
type QuickReply struct {
	Label string `json:"label"`
	Text  string `json:"text"`
}

// Reply is the single outbound message produced for one inbound event.
type Reply struct {
	Kind         ReplyKind      `json:"kind"`
	Text         string         `json:"text"`
	QuickReplies []QuickReply   `json:"quick_replies,omitempty"`
	Venues       []domain.Venue `json:"venues,omitempty"`
}

// Message texts.
const (
	TextHelp           = "輸入『午餐』開始選，或『搜尋 關鍵字』直接找！"
	TextCategoryPrompt = "想吃什麼？"
	TextNoMatch        = "找不到符合條件的餐廳 🥲"
	TextTryAgain       = "系統忙碌中，請稍後再試一次 🙏"
	TextChoiceCreated  = "已記錄"
	TextChoiceSame     = "今天已經選過這間了"
	TextChoiceReplaced = "已更新今天的選擇"
	TextUnknownVenue   = "找不到這間店，請重新選擇"
)

// Command prefixes and triggers, after normalization.
const (
	prefixCategory = "類型:"
	prefixBudget   = "預算:"
	prefixChoose   = "選擇:"
	prefixSearch   = "搜尋 "
	cmdShortcut    = "找午餐"
)

var greetings = map[string]struct{}{
	"午餐":  {},
	"午餐?": {},
	"午餐？": {},
}

var normalizer = strings.NewReplacer("：", ":", "　", " ")

// normalize trims the text and folds full-width colons and spaces.
func normalize(text string) string {
	return strings.TrimSpace(normalizer.Replace(text))
}

func helpReply() Reply {
	return Reply{Kind: ReplyHelp, Text: TextHelp}
}

func errorReply() Reply {
	return Reply{Kind: ReplyError, Text: TextTryAgain}
}

func categoryPrompt() Reply {
	quick := make([]QuickReply, 0, len(domain.Categories))
	for _, c := range domain.Categories {
		quick = append(quick, QuickReply{Label: c.Label, Text: prefixCategory + c.Label})
	}
	return Reply{Kind: ReplyPrompt, Text: TextCategoryPrompt, QuickReplies: quick}
}

func budgetPrompt(c domain.Category) Reply {
	quick := make([]QuickReply, 0, len(domain.Budgets))
	for _, b := range domain.Budgets {
		quick = append(quick, QuickReply{Label: b.Label, Text: prefixBudget + b.Label})
	}
	return Reply{Kind: ReplyPrompt, Text: "已選「" + c.Label + "」，預算多少？", QuickReplies: quick}
}

func recommendationReply(venues []domain.Venue) Reply {
	if len(venues) == 0 {
		return Reply{Kind: ReplyRecommendation, Text: TextNoMatch, Venues: []domain.Venue{}}
	}
	return Reply{Kind: ReplyRecommendation, Text: FormatVenues(venues), Venues: venues}
}

// FormatVenues renders venues as plain text, one "name (rating⭐)\naddress"
// block per venue.
func FormatVenues(venues []domain.Venue) string {
	blocks := make([]string, 0, len(venues))
	for _, v := range venues {
		rating := "N/A"
		if v.Rating != nil {
			rating = strconv.FormatFloat(*v.Rating, 'f', -1, 64)
		}
		blocks = append(blocks, v.Name+" ("+rating+"⭐)\n"+v.Address)
	}
	return strings.Join(blocks, "\n\n")
}

// ChoiceToken is the message text that confirms venueID.
func ChoiceToken(venueID string) string {
	return prefixChoose + venueID
}
