// Package queue implements the packed, log-structured arena that backs a
// Queue account's variable region: a zero-copy view over raw account
// bytes supporting append, iteration, lookup by request id, and in-place
// removal. See spec §4.2 and §9 for the layout and aliasing rules this
// package is built to satisfy.
package queue

import (
	"encoding/binary"
	"errors"
)

// Size and bound constants from spec §3/§4.2/§6.
const (
	HeaderSize = 12 // item_count:u32, cursor:u32, index:u8, pad[3]
	ItemAlign  = 8

	// ItemFixedSize is sizeof(item): slot(8) + id(32) + callback_program_id(32)
	// + three u32 offsets(12) + three u16 lengths(6) + priority_request(1)
	// + used(1) + pad(4) = 96 bytes.
	ItemFixedSize = 96

	MetaSize = 33 // pubkey[32] + is_writable:u8

	MaxMetas           = 20
	MaxArgsLen         = 512
	MaxCallbackDiscLen = 8
)

var (
	// ErrAccountDataTooSmall is returned by AddItem when writing the item
	// would run past the end of the account's byte slice.
	ErrAccountDataTooSmall = errors.New("queue: account data too small")
	// ErrArgumentSizeTooLarge is returned by AddItem when metas or args
	// exceed the bounds fixed in spec §4.2.
	ErrArgumentSizeTooLarge = errors.New("queue: argument size too large")
	// ErrInvalidQueueIndex is returned by RemoveItem when the logical
	// index does not correspond to a currently-used item.
	ErrInvalidQueueIndex = errors.New("queue: invalid queue index")
	// ErrViewTooSmall is returned by NewView when buf is smaller than
	// the fixed header.
	ErrViewTooSmall = errors.New("queue: buffer smaller than header")
)

// Meta is one callback account reference: a pubkey plus a writability
// flag. is_signer is elided — the callback always runs with only the
// program identity PDA as signer (spec §3).
type Meta struct {
	Pubkey     [32]byte
	IsWritable bool
}

// Item is a materialized copy of one queue entry, produced by the
// traversal methods below. It mirrors the packed on-disk item plus the
// trailing variable-length payload it frames.
type Item struct {
	Slot                uint64
	ID                  [32]byte
	CallbackProgramID   [32]byte
	Discriminator       []byte
	Metas               []Meta
	Args                []byte
	PriorityRequest      uint8
	Used                bool

	logicalIndex int
	recordOffset uint32 // offset of the fixed item record, for RemoveItem
}

func (it Item) LogicalIndex() int { return it.logicalIndex }

// View binds a mutable byte slice — the Queue account body, starting
// immediately after the account's 8-byte discriminator — as a header
// plus variable region. All methods read and write through buf directly;
// there is no parsed copy kept elsewhere, so header and item mutations
// are immediately observable through the same handle (spec §9,
// "address-space aliasing").
type View struct {
	buf []byte
}

// NewView binds buf. If the header's cursor field reads zero, the
// account is being used for the first time: cursor is initialised to
// the item-aligned start of the variable region.
func NewView(buf []byte) (*View, error) {
	if len(buf) < HeaderSize {
		return nil, ErrViewTooSmall
	}
	v := &View{buf: buf}
	if v.Cursor() == 0 {
		v.setCursor(alignUp(HeaderSize, ItemAlign))
	}
	return v, nil
}

func alignUp(n, align uint32) uint32 {
	rem := n % align
	if rem == 0 {
		return n
	}
	return n + (align - rem)
}

func (v *View) ItemCount() uint32 { return binary.LittleEndian.Uint32(v.buf[0:4]) }
func (v *View) Cursor() uint32    { return binary.LittleEndian.Uint32(v.buf[4:8]) }
func (v *View) Index() uint8      { return v.buf[8] }

func (v *View) setItemCount(n uint32) { binary.LittleEndian.PutUint32(v.buf[0:4], n) }
func (v *View) setCursor(c uint32)    { binary.LittleEndian.PutUint32(v.buf[4:8], c) }

// SetIndex stamps the queue's own index (its place in the oracle's
// queue namespace) into the header. Called once at InitializeOracleQueue
// time.
func (v *View) SetIndex(i uint8) { v.buf[8] = i }

// Len is the total account body length bound to this view.
func (v *View) Len() int { return len(v.buf) }

// AddItem appends a new entry to the variable region. metas and args are
// bounds-checked per spec §4.2/§6; the discriminator is bounds-checked
// against MaxCallbackDiscLen by the caller (program/ surfaces that as
// ArgumentSizeTooLarge too, but it's a request-parsing concern, not a
// queue-engine one — this function only enforces the arena's own limits).
// Returns the logical index of the new item (equal to the prior
// ItemCount, matching spec §4.2).
func (v *View) AddItem(slot uint64, id, callbackProgramID [32]byte, disc []byte, metas []Meta, args []byte, priority uint8) (uint32, error) {
	if len(metas) > MaxMetas || len(args) > MaxArgsLen {
		return 0, ErrArgumentSizeTooLarge
	}

	cursor := alignUp(v.Cursor(), ItemAlign)
	recordOffset := cursor
	discOffset := recordOffset + ItemFixedSize
	metasOffset := discOffset + uint32(len(disc))
	argsOffset := metasOffset + uint32(len(metas))*MetaSize
	end := argsOffset + uint32(len(args))

	if int(end) > len(v.buf) {
		return 0, ErrAccountDataTooSmall
	}

	binary.LittleEndian.PutUint64(v.buf[recordOffset:], slot)
	copy(v.buf[recordOffset+8:recordOffset+40], id[:])
	copy(v.buf[recordOffset+40:recordOffset+72], callbackProgramID[:])
	binary.LittleEndian.PutUint32(v.buf[recordOffset+72:], discOffset)
	binary.LittleEndian.PutUint32(v.buf[recordOffset+76:], metasOffset)
	binary.LittleEndian.PutUint32(v.buf[recordOffset+80:], argsOffset)
	binary.LittleEndian.PutUint16(v.buf[recordOffset+84:], uint16(len(disc)))
	binary.LittleEndian.PutUint16(v.buf[recordOffset+86:], uint16(len(metas)))
	binary.LittleEndian.PutUint16(v.buf[recordOffset+88:], uint16(len(args)))
	v.buf[recordOffset+90] = priority
	v.buf[recordOffset+91] = 1 // used

	copy(v.buf[discOffset:metasOffset], disc)
	for i, m := range metas {
		off := metasOffset + uint32(i)*MetaSize
		copy(v.buf[off:off+32], m.Pubkey[:])
		if m.IsWritable {
			v.buf[off+32] = 1
		} else {
			v.buf[off+32] = 0
		}
	}
	copy(v.buf[argsOffset:end], args)

	logicalIndex := v.ItemCount()
	v.setItemCount(logicalIndex + 1)
	v.setCursor(alignUp(end, ItemAlign))

	return logicalIndex, nil
}

// readRecord parses the fixed portion of an item record at offset off,
// trusting nothing beyond what bounds-checking against cursor/len(buf)
// already allows. Returns ok=false if off is out of range or the
// declared lengths would read past the buffer (spec §9: corrupt lengths
// must stop iteration, not read out of bounds).
func (v *View) readRecord(off uint32) (Item, uint32, bool) {
	if int(off)+ItemFixedSize > len(v.buf) {
		return Item{}, 0, false
	}
	var it Item
	it.Slot = binary.LittleEndian.Uint64(v.buf[off:])
	copy(it.ID[:], v.buf[off+8:off+40])
	copy(it.CallbackProgramID[:], v.buf[off+40:off+72])
	discOffset := binary.LittleEndian.Uint32(v.buf[off+72:])
	metasOffset := binary.LittleEndian.Uint32(v.buf[off+76:])
	argsOffset := binary.LittleEndian.Uint32(v.buf[off+80:])
	discLen := binary.LittleEndian.Uint16(v.buf[off+84:])
	metasLen := binary.LittleEndian.Uint16(v.buf[off+86:])
	argsLen := binary.LittleEndian.Uint16(v.buf[off+88:])
	it.PriorityRequest = v.buf[off+90]
	it.Used = v.buf[off+91] == 1
	it.recordOffset = off

	end := argsOffset + uint32(argsLen)
	if end < argsOffset || int(end) > len(v.buf) {
		return Item{}, 0, false
	}
	if int(metasOffset)+int(metasLen)*MetaSize > len(v.buf) || metasOffset < discOffset {
		return Item{}, 0, false
	}
	if int(discOffset)+int(discLen) > len(v.buf) || discOffset < off+ItemFixedSize {
		return Item{}, 0, false
	}

	it.Discriminator = append([]byte(nil), v.buf[discOffset:discOffset+uint32(discLen)]...)
	it.Metas = make([]Meta, metasLen)
	for i := range it.Metas {
		mo := metasOffset + uint32(i)*MetaSize
		copy(it.Metas[i].Pubkey[:], v.buf[mo:mo+32])
		it.Metas[i].IsWritable = v.buf[mo+32] == 1
	}
	it.Args = append([]byte(nil), v.buf[argsOffset:end]...)

	advance := alignUp(end, ItemAlign) - off
	if advance == 0 {
		return Item{}, 0, false
	}
	return it, advance, true
}

// IterItems walks every item in the variable region, invoking visit for
// each one whose used bit is set. Iteration stops early (without error)
// if a record's declared lengths would corrupt the traversal, per spec
// §9.
func (v *View) IterItems(visit func(Item) bool) {
	itemsStart := alignUp(HeaderSize, ItemAlign)
	cursor := v.Cursor()
	off := itemsStart
	logical := 0
	for off < cursor {
		it, advance, ok := v.readRecord(off)
		if !ok {
			return
		}
		if it.Used {
			it.logicalIndex = logical
			if !visit(it) {
				return
			}
			logical++
		}
		off += advance
	}
}

// FindItemByID returns the first used item whose ID matches target.
func (v *View) FindItemByID(target [32]byte) (Item, bool) {
	var found Item
	ok := false
	v.IterItems(func(it Item) bool {
		if it.ID == target {
			found = it
			ok = true
			return false
		}
		return true
	})
	return found, ok
}

// GetItemByIndex returns the i-th used item (logical index, i.e. the
// index AddItem returned for it).
func (v *View) GetItemByIndex(i uint32) (Item, bool) {
	var found Item
	ok := false
	v.IterItems(func(it Item) bool {
		if uint32(it.logicalIndex) == i {
			found = it
			ok = true
			return false
		}
		return true
	})
	return found, ok
}

// RemoveItem flips the used bit on the i-th used item in place,
// decrements item_count, and returns the removed item. Returns
// ErrInvalidQueueIndex if no such item exists.
func (v *View) RemoveItem(i uint32) (Item, error) {
	it, ok := v.GetItemByIndex(i)
	if !ok {
		return Item{}, ErrInvalidQueueIndex
	}
	v.buf[it.recordOffset+91] = 0
	v.setItemCount(v.ItemCount() - 1)
	return it, nil
}

// RemoveByID locates an item by request id and removes it, returning the
// removed item. Used by ProvideRandomness and PurgeExpiredRequests.
func (v *View) RemoveByID(id [32]byte) (Item, error) {
	it, ok := v.FindItemByID(id)
	if !ok {
		return Item{}, ErrInvalidQueueIndex
	}
	v.buf[it.recordOffset+91] = 0
	v.setItemCount(v.ItemCount() - 1)
	return it, nil
}
