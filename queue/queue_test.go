package queue

import (
	"bytes"
	"testing"
)

func freshView(t *testing.T, size int) *View {
	t.Helper()
	v, err := NewView(make([]byte, size))
	if err != nil {
		t.Fatalf("NewView: %v", err)
	}
	return v
}

func seedID(b byte) [32]byte {
	var id [32]byte
	for i := range id {
		id[i] = b
	}
	return id
}

func TestAddItemThenIterSeesOnlyUsedItems(t *testing.T) {
	v := freshView(t, 4096)

	id1 := seedID(1)
	id2 := seedID(2)
	if _, err := v.AddItem(10, id1, seedID(0xAA), []byte{0x01}, nil, []byte("args-1"), 0); err != nil {
		t.Fatalf("AddItem 1: %v", err)
	}
	if _, err := v.AddItem(11, id2, seedID(0xBB), []byte{0x02}, nil, []byte("args-2"), 1); err != nil {
		t.Fatalf("AddItem 2: %v", err)
	}

	var seen [][32]byte
	v.IterItems(func(it Item) bool {
		seen = append(seen, it.ID)
		return true
	})
	if len(seen) != 2 || seen[0] != id1 || seen[1] != id2 {
		t.Fatalf("unexpected iteration order/content: %v", seen)
	}
	if v.ItemCount() != 2 {
		t.Fatalf("expected item_count 2, got %d", v.ItemCount())
	}
}

func TestItemCountEqualsIterationCount(t *testing.T) {
	v := freshView(t, 4096)
	for i := byte(0); i < 5; i++ {
		if _, err := v.AddItem(uint64(i), seedID(i+1), seedID(0xCC), []byte{i}, nil, nil, 0); err != nil {
			t.Fatalf("AddItem %d: %v", i, err)
		}
	}
	if _, err := v.RemoveItem(2); err != nil {
		t.Fatalf("RemoveItem: %v", err)
	}

	count := 0
	v.IterItems(func(Item) bool { count++; return true })
	if uint32(count) != v.ItemCount() {
		t.Fatalf("item_count (%d) != reachable used items (%d)", v.ItemCount(), count)
	}
}

func TestAddThenRemoveAtReturnedIndexPreservesCount(t *testing.T) {
	v := freshView(t, 4096)
	id := seedID(7)
	before := v.ItemCount()

	idx, err := v.AddItem(42, id, seedID(0xDD), []byte{0x09}, []Meta{{Pubkey: seedID(1), IsWritable: true}}, []byte("payload"), 1)
	if err != nil {
		t.Fatalf("AddItem: %v", err)
	}

	item, ok := v.GetItemByIndex(idx)
	if !ok {
		t.Fatal("could not find item at returned logical index")
	}
	if item.Slot != 42 || item.ID != id || item.PriorityRequest != 1 || !bytes.Equal(item.Discriminator, []byte{0x09}) || !bytes.Equal(item.Args, []byte("payload")) {
		t.Fatalf("round-tripped item does not match what was written: %+v", item)
	}

	if _, err := v.RemoveItem(idx); err != nil {
		t.Fatalf("RemoveItem: %v", err)
	}
	if v.ItemCount() != before {
		t.Fatalf("expected item_count to return to %d, got %d", before, v.ItemCount())
	}
}

func TestFindItemByIDMissingReturnsNotFound(t *testing.T) {
	v := freshView(t, 4096)
	v.AddItem(1, seedID(1), seedID(0xEE), nil, nil, nil, 0)
	if _, ok := v.FindItemByID(seedID(99)); ok {
		t.Fatal("expected not-found for an id never added")
	}
}

func TestRemoveByIDTwiceFailsSecondTime(t *testing.T) {
	v := freshView(t, 4096)
	id := seedID(5)
	v.AddItem(1, id, seedID(0xFF), nil, nil, nil, 0)

	if _, err := v.RemoveByID(id); err != nil {
		t.Fatalf("first remove: %v", err)
	}
	if _, err := v.RemoveByID(id); err == nil {
		t.Fatal("expected second removal of the same id to fail")
	}
}

func TestOversizeMetasRejected(t *testing.T) {
	v := freshView(t, 4096)
	metas := make([]Meta, MaxMetas+1)
	if _, err := v.AddItem(1, seedID(1), seedID(2), nil, metas, nil, 0); err != ErrArgumentSizeTooLarge {
		t.Fatalf("expected ErrArgumentSizeTooLarge, got %v", err)
	}
}

func TestOversizeArgsRejected(t *testing.T) {
	v := freshView(t, 4096)
	args := make([]byte, MaxArgsLen+1)
	if _, err := v.AddItem(1, seedID(1), seedID(2), nil, nil, args, 0); err != ErrArgumentSizeTooLarge {
		t.Fatalf("expected ErrArgumentSizeTooLarge, got %v", err)
	}
}

func TestQueueOverflowFourthAppendFailsThirdItemsSurvive(t *testing.T) {
	// Size the account for exactly 3 max-size items, per spec §8 scenario 6.
	maxItemSize := int(alignUp(ItemFixedSize+MaxCallbackDiscLen+MaxMetas*MetaSize+MaxArgsLen, ItemAlign))
	itemsStart := int(alignUp(HeaderSize, ItemAlign))
	size := itemsStart + 3*maxItemSize
	v := freshView(t, size)

	maxDisc := make([]byte, MaxCallbackDiscLen)
	maxMetas := make([]Meta, MaxMetas)
	maxArgs := make([]byte, MaxArgsLen)

	for i := 0; i < 3; i++ {
		if _, err := v.AddItem(uint64(i), seedID(byte(i+1)), seedID(0x10), maxDisc, maxMetas, maxArgs, 0); err != nil {
			t.Fatalf("append %d should fit: %v", i, err)
		}
	}
	if _, err := v.AddItem(99, seedID(200), seedID(0x10), maxDisc, maxMetas, maxArgs, 0); err != ErrAccountDataTooSmall {
		t.Fatalf("expected ErrAccountDataTooSmall on 4th append, got %v", err)
	}

	count := 0
	v.IterItems(func(Item) bool { count++; return true })
	if count != 3 {
		t.Fatalf("expected 3 surviving items after overflow, got %d", count)
	}
}

func TestCursorNeverDecreases(t *testing.T) {
	v := freshView(t, 4096)
	v.AddItem(1, seedID(1), seedID(2), nil, nil, []byte("a"), 0)
	c1 := v.Cursor()
	v.RemoveByID(seedID(1))
	if v.Cursor() != c1 {
		t.Fatal("cursor moved backwards on removal")
	}
	v.AddItem(2, seedID(3), seedID(4), nil, nil, []byte("b"), 0)
	if v.Cursor() <= c1 {
		t.Fatal("cursor did not advance on a subsequent append")
	}
}
