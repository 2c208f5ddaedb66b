package cache

// JSON protocol for the cache daemon over a Unix domain socket.
// Each request gets exactly one response, using json.Encoder/Decoder on the connection.

const (
	opPartition = "partition"
	opNames     = "names"
	opDrop      = "drop"
	opMatch     = "match"
	opPut       = "put"
	opList      = "list"
)

type Request struct {
	Op        string `json:"op"` // see the op* constants
	Partition string `json:"partition,omitempty"`
	Method    string `json:"method,omitempty"`
	URL       string `json:"url,omitempty"`
	Entry     *Entry `json:"entry,omitempty"`
}

type Response struct {
	OK      bool        `json:"ok"`
	Error   string      `json:"error,omitempty"`
	Entry   *Entry      `json:"entry,omitempty"`
	Names   []string    `json:"names,omitempty"`
	Entries []EntryInfo `json:"entries,omitempty"`
	Existed bool        `json:"existed,omitempty"`
}
