package wlanmgr

import (
	"context"
	"net"

	"github.com/pkg/errors"
)

// KeyParams describe a key to install.
type KeyParams struct {
	Index    int
	Pairwise bool

	// MAC is the peer a pairwise key belongs to.
	MAC net.HardwareAddr

	Cipher CipherSuite
	Key    []byte
	Seq    []byte
}

// KeyInfo describes an installed key. The key material is not returned.
type KeyInfo struct {
	Index  int
	Cipher CipherSuite
	Length int
	Seq    []byte
}

func checkKeyIndex(i int) error {
	if i < 0 || i > MaxKeyIndex {
		return errors.Wrapf(ErrNoSuchEntry, "key index %d", i)
	}

	return nil
}

// AddKey installs a key. Group and WEP keys added while an access point is
// still starting are held back and installed when the BSS comes up.
func (d *Device) AddKey(ctx context.Context, ifi *Interface, p KeyParams) error {
	krk := p.Cipher == CipherSuiteCCKMKRK

	var (
		crypto CryptoType
		seq    = p.Seq
	)
	if krk {
		if len(p.Key) != krkLen {
			return errors.Wrapf(ErrInvalidParams, "krk length %d", len(p.Key))
		}
	} else {
		if err := checkKeyIndex(p.Index); err != nil {
			return err
		}

		if p.Cipher == CipherSuiteSMS4 && len(seq) > maxSeqLen {
			// Only the first half of the WPI packet number is configured.
			seq = seq[:maxSeqLen]
		}
		if len(p.Key) == 0 || len(p.Key) > maxKeyLen || len(seq) > maxSeqLen {
			return errors.Wrapf(ErrInvalidParams, "key length %d, seq length %d", len(p.Key), len(seq))
		}

		c, _, err := p.Cipher.crypto()
		if err != nil || c == CryptoNone {
			return errors.Wrapf(ErrNotSupported, "cipher %#08x", uint32(p.Cipher))
		}
		crypto = c
	}

	v, err := d.begin(ctx, ifi)
	if err != nil {
		return err
	}
	defer d.unlock()

	if err := d.checkReady(v); err != nil {
		return err
	}

	fwIdx := v.ifi.FirmwareIndex

	if krk {
		d.dbg(DebugKeys, v, "add krk")
		if err := d.fw.AddKRK(ctx, fwIdx, p.Key); err != nil {
			return fwErr("add krk", err)
		}
		return nil
	}

	idx := uint8(p.Index)
	k := key{
		cipher: p.Cipher,
		crypto: crypto,
		key:    append([]byte(nil), p.Key...),
		seq:    append([]byte(nil), seq...),
	}
	v.keys[idx] = k
	v.fixDefTxKey()

	usage := KeyUsageGroup
	if p.Pairwise {
		usage = KeyUsagePairwise
	}

	d.dbg(DebugKeys, v, "add key index %d cipher %s usage %#x", idx, crypto, usage)

	// Any key means the handshake got far enough.
	if v.auth.psk() {
		d.stopTimer(v)
	}

	if v.apPending() {
		switch {
		case !p.Pairwise && (crypto == CryptoTKIP || crypto == CryptoAES || crypto == CryptoWAPI):
			d.dbg(DebugKeys, v, "delay group key index %d until ap mode starts", idx)
			v.stagedGrp = &stagedKey{
				index:  idx,
				crypto: crypto,
				key:    k.key,
			}
			return nil
		case crypto == CryptoWEP:
			d.dbg(DebugKeys, v, "delay wep key index %d until ap mode starts", idx)
			v.stagedWEP[idx] = k.key
			return nil
		}
	}

	if crypto == CryptoWEP && v.auth == AuthNone && idx == v.defTxKey {
		usage |= KeyUsageTx
	}

	err = d.fw.AddKey(ctx, AddKeyCommand{
		Vif:    fwIdx,
		Index:  idx,
		Crypto: crypto,
		Usage:  usage,
		Key:    k.key,
		RSC:    k.seq,
		MAC:    cloneMAC(p.MAC),
	})
	if err != nil {
		return fwErr("add key", err)
	}

	return nil
}

// DelKey removes a key. Removing an empty slot succeeds.
func (d *Device) DelKey(ctx context.Context, ifi *Interface, index int) error {
	if err := checkKeyIndex(index); err != nil {
		return err
	}

	v, err := d.begin(ctx, ifi)
	if err != nil {
		return err
	}
	defer d.unlock()

	if err := d.checkReady(v); err != nil {
		return err
	}

	idx := uint8(index)
	if v.keys[idx].empty() {
		d.dbg(DebugKeys, v, "index %d is empty", idx)
		return nil
	}

	v.keys[idx] = key{}
	v.stagedWEP[idx] = nil
	v.fixDefTxKey()

	if err := d.fw.DeleteKey(ctx, v.ifi.FirmwareIndex, idx); err != nil {
		return fwErr("delete key", err)
	}

	return nil
}

// GetKey describes the key in a slot. An empty slot returns ErrNoSuchEntry.
func (d *Device) GetKey(ctx context.Context, ifi *Interface, index int) (*KeyInfo, error) {
	if err := checkKeyIndex(index); err != nil {
		return nil, err
	}

	v, err := d.begin(ctx, ifi)
	if err != nil {
		return nil, err
	}
	defer d.unlock()

	if err := d.checkReady(v); err != nil {
		return nil, err
	}

	k := v.keys[index]
	if k.empty() {
		return nil, errors.Wrapf(ErrNoSuchEntry, "key index %d is empty", index)
	}

	return &KeyInfo{
		Index:  index,
		Cipher: k.cipher,
		Length: len(k.key),
		Seq:    append([]byte(nil), k.seq...),
	}, nil
}

// SetDefaultKey selects the key used for transmission. While an access point
// is starting the selection is recorded and applied when the BSS comes up.
func (d *Device) SetDefaultKey(ctx context.Context, ifi *Interface, index int, unicast, multicast bool) error {
	if err := checkKeyIndex(index); err != nil {
		return err
	}

	v, err := d.begin(ctx, ifi)
	if err != nil {
		return err
	}
	defer d.unlock()

	if err := d.checkReady(v); err != nil {
		return err
	}

	idx := uint8(index)
	k := v.keys[idx]
	if k.empty() {
		v.log.WithField("key_index", idx).Error("default key index is empty")
		return errors.Wrapf(ErrInvalidParams, "key index %d is empty", idx)
	}
	v.defTxKey = idx

	usage := KeyUsageGroup
	if v.prwCrypto == CryptoWEP {
		usage |= KeyUsageTx
	}

	crypto := v.prwCrypto
	if multicast {
		crypto = v.grpCrypto
	}

	if v.apPending() {
		d.dbg(DebugKeys, v, "delay default key index %d until ap mode starts", idx)
		return nil
	}

	d.dbg(DebugKeys, v, "default key index %d", idx)

	err = d.fw.AddKey(ctx, AddKeyCommand{
		Vif:    v.ifi.FirmwareIndex,
		Index:  idx,
		Crypto: crypto,
		Usage:  usage,
		Key:    k.key,
		RSC:    k.seq,
	})
	if err != nil {
		return fwErr("set default key", err)
	}

	return nil
}

// installStagedKeys sends the keys held back while the BSS was starting.
func (d *Device) installStagedKeys(v *vif) {
	ctx := context.Background()
	fwIdx := v.ifi.FirmwareIndex

	installGroup := v.auth.psk()
	if v.auth == AuthNone && v.prwCrypto == CryptoWEP {
		for i, b := range v.stagedWEP {
			if len(b) == 0 {
				continue
			}

			usage := KeyUsageGroup
			if uint8(i) == v.defTxKey {
				usage |= KeyUsageTx
			}

			err := d.fw.AddKey(ctx, AddKeyCommand{
				Vif:    fwIdx,
				Index:  uint8(i),
				Crypto: CryptoWEP,
				Usage:  usage,
				Key:    b,
			})
			if err != nil {
				v.log.WithError(err).WithField("key_index", i).Warn("couldn't install static wep key")
			}
		}
	}
	if v.auth == AuthNone && v.stagedGrp != nil && v.stagedGrp.crypto == CryptoWAPI {
		installGroup = true
	}

	k := v.stagedGrp
	if !installGroup || k == nil {
		return
	}
	v.stagedGrp = nil

	d.dbg(DebugKeys, v, "install delayed group key index %d", k.index)

	err := d.fw.AddKey(ctx, AddKeyCommand{
		Vif:    fwIdx,
		Index:  k.index,
		Crypto: k.crypto,
		Usage:  KeyUsageGroup,
		Key:    k.key,
		RSC:    make([]byte, maxSeqLen),
	})
	if err != nil {
		v.log.WithError(err).Warn("couldn't install delayed group key")
	}
}
