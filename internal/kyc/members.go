package kyc

import "github.com/ethereum/go-ethereum/common"

// memberSet is an insertion-ordered address set. Removal moves the last member into the freed
// slot, matching how role members are enumerated on chain.
type memberSet struct {
	list []common.Address
	pos  map[common.Address]int
}

func newMemberSet() *memberSet {
	return &memberSet{pos: make(map[common.Address]int)}
}

func (s *memberSet) len() int { return len(s.list) }

func (s *memberSet) at(i int) common.Address { return s.list[i] }

func (s *memberSet) has(a common.Address) bool {
	_, ok := s.pos[a]
	return ok
}

func (s *memberSet) add(a common.Address) bool {
	if s.has(a) {
		return false
	}
	s.pos[a] = len(s.list)
	s.list = append(s.list, a)
	return true
}

func (s *memberSet) remove(a common.Address) bool {
	i, ok := s.pos[a]
	if !ok {
		return false
	}
	last := len(s.list) - 1
	if i != last {
		moved := s.list[last]
		s.list[i] = moved
		s.pos[moved] = i
	}
	s.list = s.list[:last]
	delete(s.pos, a)
	return true
}
