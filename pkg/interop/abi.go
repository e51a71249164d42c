package interop

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Event definitions of the predeploys we index. Only the events are needed, so the
// functions are left out of the JSON.
const (
	// L2ToL2CrossDomainMessenger
	messengerABIJSON = `[
	{"type":"event","name":"SentMessage","anonymous":false,"inputs":[
		{"name":"destination","type":"uint256","indexed":true},
		{"name":"target","type":"address","indexed":true},
		{"name":"messageNonce","type":"uint256","indexed":true},
		{"name":"sender","type":"address","indexed":false},
		{"name":"message","type":"bytes","indexed":false}]},
	{"type":"event","name":"RelayedMessage","anonymous":false,"inputs":[
		{"name":"source","type":"uint256","indexed":true},
		{"name":"messageNonce","type":"uint256","indexed":true},
		{"name":"messageHash","type":"bytes32","indexed":true}]},
	{"type":"event","name":"FailedRelayedMessage","anonymous":false,"inputs":[
		{"name":"source","type":"uint256","indexed":true},
		{"name":"messageNonce","type":"uint256","indexed":true},
		{"name":"messageHash","type":"bytes32","indexed":true}]}
]`

	// CrossL2Inbox
	inboxABIJSON = `[
	{"type":"event","name":"ExecutingMessage","anonymous":false,"inputs":[
		{"name":"msgHash","type":"bytes32","indexed":true},
		{"name":"id","type":"tuple","indexed":false,"internalType":"struct ICrossL2Inbox.Identifier","components":[
			{"name":"origin","type":"address"},
			{"name":"blockNumber","type":"uint256"},
			{"name":"logIndex","type":"uint256"},
			{"name":"timestamp","type":"uint256"},
			{"name":"chainId","type":"uint256"}]}]}
]`
)

var (
	MessengerABI = mustParseABI("L2ToL2CrossDomainMessenger", messengerABIJSON)
	InboxABI     = mustParseABI("CrossL2Inbox", inboxABIJSON)

	// SentMessage(uint256 indexed destination, address indexed target, uint256 indexed messageNonce, address sender, bytes message)
	SentMessageTopic = MessengerABI.Events["SentMessage"].ID
	// RelayedMessage(uint256 indexed source, uint256 indexed messageNonce, bytes32 indexed messageHash)
	RelayedMessageTopic = MessengerABI.Events["RelayedMessage"].ID
	// FailedRelayedMessage(uint256 indexed source, uint256 indexed messageNonce, bytes32 indexed messageHash)
	FailedRelayedMessageTopic = MessengerABI.Events["FailedRelayedMessage"].ID
	// ExecutingMessage(bytes32 indexed msgHash, (address,uint256,uint256,uint256,uint256) id)
	ExecutingMessageTopic = InboxABI.Events["ExecutingMessage"].ID

	// The non-indexed part of SentMessage: (address sender, bytes message).
	sentMessageData = MessengerABI.Events["SentMessage"].Inputs.NonIndexed()
)

// Predeploy addresses shared by every chain in the interop set.
var (
	MessengerAddress = common.HexToAddress("0x4200000000000000000000000000000000000023")
	InboxAddress     = common.HexToAddress("0x4200000000000000000000000000000000000022")
)

func mustParseABI(name string, def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("failed to parse %s abi: %v", name, err))
	}
	return parsed
}
