package cache

import (
	"fmt"
	"io/ioutil"
	"os"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"github.com/rigado/sco"
)

type peerCache struct {
	filename string
	lock     sync.RWMutex
}

func New(filename string) sco.PeerCache {
	pc := peerCache{
		filename: filename,
	}

	return &pc
}

func (pc *peerCache) Store(mac sco.Addr, r sco.PeerRecord, replace bool) error {
	pc.lock.Lock()
	defer pc.lock.Unlock()

	cache, err := pc.loadExisting()
	if err != nil {
		return err
	}

	_, ok := cache[mac.String()]
	if ok && !replace {
		return fmt.Errorf("cache already contains record for %s", mac.String())
	}

	cache[mac.String()] = r

	err = pc.storeCache(cache)
	if err != nil {
		return err
	}

	return nil
}

func (pc *peerCache) Load(mac sco.Addr) (sco.PeerRecord, error) {
	pc.lock.RLock()
	defer pc.lock.RUnlock()

	cache, err := pc.loadExisting()
	if err != nil {
		return sco.PeerRecord{}, err
	}

	r, ok := cache[mac.String()]
	if !ok {
		return sco.PeerRecord{}, fmt.Errorf("record for %s not found in cache", mac.String())
	}

	return r, nil
}

func (pc *peerCache) Clear() error {
	pc.lock.Lock()
	defer pc.lock.Unlock()

	err := os.Remove(pc.filename)
	if err != nil {
		return err
	}

	return nil
}

func (pc *peerCache) loadExisting() (map[string]sco.PeerRecord, error) {
	_, err := os.Stat(pc.filename)
	if os.IsNotExist(err) {
		return map[string]sco.PeerRecord{}, nil
	}

	in, err := ioutil.ReadFile(pc.filename)
	if err != nil {
		return nil, err
	}

	var cache map[string]sco.PeerRecord
	err = jsoniter.Unmarshal(in, &cache)
	if err != nil {
		return nil, err
	}

	return cache, nil
}

func (pc *peerCache) storeCache(cache map[string]sco.PeerRecord) error {
	out, err := jsoniter.Marshal(cache)
	if err != nil {
		return err
	}

	return ioutil.WriteFile(pc.filename, out, 0644)
}
