package attribute

func computeDerived(total ValueSet) DerivedSet {
	var derived DerivedSet

	strength := clamp(total[StatStrength], 0, 1e9)
	intellect := clamp(total[StatIntellect], 0, 1e9)
	agility := clamp(total[StatAgility], 0, 1e9)
	armor := clamp(total[StatArmor], 0, 1e9)

	derived[DerivedMaxHealth] = baseHealthFlat + strength*strengthHealthScalar
	derived[DerivedMaxMana] = baseManaFlat + intellect*intellectManaScalar
	derived[DerivedMitigation] = clamp(armor/(armor+armorHalfPoint), 0, maxMitigation)
	derived[DerivedHaste] = clamp(1+agility*agilityHasteScalar, 0.1, 5)

	return derived
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
