package headers

import "testing"

func buildEthernet(etherType uint16, vlanTCIs ...uint16) []byte {
	b := make([]byte, 0, EthernetHeaderLen+len(vlanTCIs)*vlanHeaderLen)
	b = append(b, 0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF) // dst
	b = append(b, 0x11, 0x22, 0x33, 0x44, 0x55, 0x66) // src

	cur := etherType
	for _, tci := range vlanTCIs {
		b = append(b, byte(etherTypeVLAN>>8), byte(etherTypeVLAN&0xFF))
		b = append(b, byte(tci>>8), byte(tci))
		_ = cur
	}
	b = append(b, byte(etherType>>8), byte(etherType))
	return b
}

func TestParseEthernet_NoVLAN(t *testing.T) {
	data := buildEthernet(EtherTypeIPv4)
	eth, offset, err := ParseEthernet(data)
	if err != nil {
		t.Fatalf("ParseEthernet failed: %v", err)
	}
	if offset != EthernetHeaderLen {
		t.Errorf("offset = %d, want %d", offset, EthernetHeaderLen)
	}
	if eth.EtherType != EtherTypeIPv4 {
		t.Errorf("EtherType = %#x, want %#x", eth.EtherType, EtherTypeIPv4)
	}
	if len(eth.VLANs) != 0 {
		t.Errorf("VLANs = %v, want none", eth.VLANs)
	}
	want := [6]byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF}
	if eth.DstMAC != want {
		t.Errorf("DstMAC = %v, want %v", eth.DstMAC, want)
	}
}

func TestParseEthernet_SingleVLAN(t *testing.T) {
	data := buildEthernet(EtherTypeIPv4, 100)
	eth, offset, err := ParseEthernet(data)
	if err != nil {
		t.Fatalf("ParseEthernet failed: %v", err)
	}
	if offset != EthernetHeaderLen+4 {
		t.Errorf("offset = %d, want %d", offset, EthernetHeaderLen+4)
	}
	if len(eth.VLANs) != 1 || eth.VLANs[0] != 100 {
		t.Errorf("VLANs = %v, want [100]", eth.VLANs)
	}
	if eth.EtherType != EtherTypeIPv4 {
		t.Errorf("EtherType = %#x, want %#x", eth.EtherType, EtherTypeIPv4)
	}
}

func TestParseEthernet_QinQ(t *testing.T) {
	data := make([]byte, 0)
	data = append(data, 0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF)
	data = append(data, 0x11, 0x22, 0x33, 0x44, 0x55, 0x66)
	data = append(data, byte(etherTypeQinQ>>8), byte(etherTypeQinQ&0xFF), 0x00, 200)
	data = append(data, byte(etherTypeVLAN>>8), byte(etherTypeVLAN&0xFF), 0x00, 100)
	data = append(data, byte(EtherTypeIPv4>>8), byte(EtherTypeIPv4&0xFF))

	eth, offset, err := ParseEthernet(data)
	if err != nil {
		t.Fatalf("ParseEthernet failed: %v", err)
	}
	if offset != len(data) {
		t.Errorf("offset = %d, want %d", offset, len(data))
	}
	if len(eth.VLANs) != 2 || eth.VLANs[0] != 200 || eth.VLANs[1] != 100 {
		t.Errorf("VLANs = %v, want [200 100]", eth.VLANs)
	}
}

func TestParseEthernet_TooShort(t *testing.T) {
	_, _, err := ParseEthernet(make([]byte, 10))
	if err == nil {
		t.Fatal("expected error for short frame")
	}
}

func TestParseEthernet_TruncatedVLAN(t *testing.T) {
	data := make([]byte, EthernetHeaderLen+2)
	data[12] = byte(etherTypeVLAN >> 8)
	data[13] = byte(etherTypeVLAN & 0xFF)
	_, _, err := ParseEthernet(data)
	if err == nil {
		t.Fatal("expected error for truncated VLAN tag")
	}
}
